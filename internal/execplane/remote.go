package execplane

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/crypto/ssh"

	"github.com/JonasCGN/kuberbomber/internal/awsapi"
	"github.com/JonasCGN/kuberbomber/internal/topology"
)

// NodeResolver maps a component to the public address of the node it
// should be exec'd on, plus any bastion hop needed to reach it.
type NodeResolver interface {
	BastionAddress(ctx context.Context) (string, error)
	NodeAddress(ctx context.Context, comp *topology.Component) (string, error)
}

// InstanceResolver maps a component to the EC2 instance ID backing its
// node, needed for the instance-level half of a shutdown-class
// operation.
type InstanceResolver interface {
	InstanceID(comp *topology.Component) (string, error)
}

// Remote is the AWS-hosted backend: it pushes the operation's shell
// command to the target node over SCP and runs it over SSH, applying
// the same SSH-255 and "process not found" success classification as
// the local backend. If the node can't be reached over SSH at all, it
// falls back to SSM Run Command as a second transport. Control-plane
// operations route over the bastion hop instead of a per-node address.
// Shutdown-class operations are the exception: OpShutdownAndRestart
// runs "shutdown -h now" over SSH (falling back to an EC2
// stop-instances call if SSH is unreachable), while OpStartNodeInstance
// always calls the EC2 API directly, since a powered-off guest can't
// bring itself back up on its own.
type Remote struct {
	SSHUser        string
	Signer         ssh.Signer
	Resolver       NodeResolver
	AWS            *awsapi.Client
	Instances      InstanceResolver
	ConnectTimeout time.Duration
	Log            logr.Logger
}

// NewRemote constructs a Remote backend from a parsed private key.
func NewRemote(user string, signer ssh.Signer, resolver NodeResolver, aws *awsapi.Client, instances InstanceResolver, log logr.Logger) *Remote {
	return &Remote{
		SSHUser:        user,
		Signer:         signer,
		Resolver:       resolver,
		AWS:            aws,
		Instances:      instances,
		ConnectTimeout: 10 * time.Second,
		Log:            log,
	}
}

func (r *Remote) clientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User:            r.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.Signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.ConnectTimeout,
	}
}

func (r *Remote) Invoke(ctx context.Context, comp *topology.Component, operation string) (Result, error) {
	switch operation {
	case topology.OpShutdownAndRestart:
		return r.shutdownOverSSH(ctx, comp)
	case topology.OpStartNodeInstance:
		return r.startViaEC2(ctx, comp)
	}

	cmd, ok := shellFor[operation]
	if !ok {
		return Result{}, fmt.Errorf("execplane: no remote shell mapping for operation %q", operation)
	}

	switch comp.Type {
	case topology.TypeControlPlane, topology.TypeCPAPIServer, topology.TypeCPManager, topology.TypeCPScheduler, topology.TypeCPStore:
		// The control-plane component represents the master host as a
		// whole, and its sub-components run on that host, rather than
		// on a node with its own address entry, so they're reached the
		// same way the discovery cache reaches it: over the bastion hop.
		return r.RunOnBastion(ctx, "sudo "+cmd)
	}

	addr, err := r.Resolver.NodeAddress(ctx, comp)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: resolving node address for %s: %w", comp.Name, err)
	}

	scriptName := fmt.Sprintf("kuberbomber-%s.sh", operation)
	scriptBody := "#!/bin/sh\nset -e\nsudo " + cmd + "\n"

	result, err := r.pushAndRun(ctx, addr, scriptName, scriptBody)
	if err == nil || !isUnreachable(err) {
		return result, err
	}

	r.Log.Info("no direct ssh route to node, falling back to ssm run command",
		"component", comp.Name, "operation", operation, "error", err.Error())
	return r.runViaSSM(ctx, comp, "sudo "+cmd)
}

// shutdownOverSSH runs "shutdown -h now" on the target node. The SSH
// session is expected to drop mid-command as the node powers off, so
// the shared success classification treats that as success rather
// than failure. If the node can't be reached over SSH at all (e.g. it
// is already wedged), it falls back to stopping the instance directly
// through the EC2 API.
func (r *Remote) shutdownOverSSH(ctx context.Context, comp *topology.Component) (Result, error) {
	addr, err := r.Resolver.NodeAddress(ctx, comp)
	if err == nil {
		result, sshErr := r.runSSH(ctx, addr, "sudo -n shutdown -h now")
		if sshErr == nil || !isUnreachable(sshErr) {
			return result, sshErr
		}
		err = sshErr
	}

	r.Log.Info("no ssh route to node for shutdown, falling back to ec2 stop-instances",
		"component", comp.Name, "error", err.Error())
	return r.stopViaEC2(ctx, comp)
}

// stopViaEC2 stops the node's instance directly through the EC2 API,
// the fallback used when shutdownOverSSH can't reach the node over
// SSH at all.
func (r *Remote) stopViaEC2(ctx context.Context, comp *topology.Component) (Result, error) {
	if r.AWS == nil || r.Instances == nil {
		return Result{}, fmt.Errorf("execplane: remote backend has no AWS client configured for %s", comp.Name)
	}
	instanceID, err := r.Instances.InstanceID(comp)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: resolving instance ID for %s: %w", comp.Name, err)
	}
	if err := r.AWS.StopInstance(ctx, instanceID); err != nil {
		return Result{}, fmt.Errorf("execplane: stopping instance %s: %w", instanceID, err)
	}
	return Result{Success: true, Output: fmt.Sprintf("stop-instances issued for %s", instanceID)}, nil
}

// isUnreachable reports whether err represents a failure to reach the
// node at all (dial/handshake failure) rather than the command itself
// failing once connected — the former is what triggers the SSM/EC2
// fallback paths, the latter is a genuine operation failure that
// should be returned as-is.
func isUnreachable(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr)
}

// startViaEC2 brings the node back up through the AWS API: a powered
// off instance has no SSH daemon to ask it to restart itself.
func (r *Remote) startViaEC2(ctx context.Context, comp *topology.Component) (Result, error) {
	if r.AWS == nil || r.Instances == nil {
		return Result{}, fmt.Errorf("execplane: remote backend has no AWS client configured for %s", comp.Name)
	}
	instanceID, err := r.Instances.InstanceID(comp)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: resolving instance ID for %s: %w", comp.Name, err)
	}
	if err := r.AWS.StartInstance(ctx, instanceID); err != nil {
		return Result{}, fmt.Errorf("execplane: starting instance %s: %w", instanceID, err)
	}
	return Result{Success: true, Output: fmt.Sprintf("start-instances issued for %s", instanceID)}, nil
}

// RunOnBastion executes an arbitrary command against the discovered
// bastion host, used by Invoke for operations against the control plane
// and its sub-components, which don't target a worker node's address.
func (r *Remote) RunOnBastion(ctx context.Context, command string) (Result, error) {
	addr, err := r.Resolver.BastionAddress(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: resolving bastion address: %w", err)
	}
	return r.runSSH(ctx, addr, command)
}

// runViaSSM executes command on comp's instance through SSM Run
// Command, the second remote-exec transport used when no direct SSH
// route to the node exists (e.g. it sits in a private subnet with no
// bastion hop configured).
func (r *Remote) runViaSSM(ctx context.Context, comp *topology.Component, command string) (Result, error) {
	if r.AWS == nil || r.Instances == nil {
		return Result{}, fmt.Errorf("execplane: no ssm transport configured for %s", comp.Name)
	}
	instanceID, err := r.Instances.InstanceID(comp)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: resolving instance ID for %s: %w", comp.Name, err)
	}
	commandID, err := r.AWS.SendCommand(ctx, instanceID, command)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: ssm send-command to %s: %w", instanceID, err)
	}
	return r.pollSSMCommand(ctx, instanceID, commandID)
}

// ssmPollTimeout/ssmPollInterval bound how long pollSSMCommand waits
// for an SSM Run Command invocation to reach a terminal status.
const (
	ssmPollTimeout  = 2 * time.Minute
	ssmPollInterval = 3 * time.Second
)

func (r *Remote) pollSSMCommand(ctx context.Context, instanceID, commandID string) (Result, error) {
	deadline := time.Now().Add(ssmPollTimeout)
	ticker := time.NewTicker(ssmPollInterval)
	defer ticker.Stop()

	for {
		status, output, err := r.AWS.GetCommandResult(ctx, instanceID, commandID)
		if err == nil {
			switch status {
			case "Success":
				return Result{Success: true, Output: output}, nil
			case "Failed", "Cancelled", "TimedOut":
				return Result{Success: false, Output: output}, nil
			}
		} else {
			r.Log.V(1).Info("polling ssm command result failed, retrying", "commandId", commandID, "error", err.Error())
		}

		if time.Now().After(deadline) {
			return Result{}, fmt.Errorf("execplane: ssm command %s on %s did not reach a terminal status within the poll window", commandID, instanceID)
		}

		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Remote) runSSH(ctx context.Context, addr, command string) (Result, error) {
	dialer := net.Dialer{Timeout: r.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, "22"))
	if err != nil {
		return Result{}, fmt.Errorf("execplane: dialing %s: %w", addr, err)
	}
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, r.clientConfig())
	if err != nil {
		return Result{}, fmt.Errorf("execplane: ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("execplane: opening ssh session to %s: %w", addr, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	runErr := session.Run(command)

	exitCode := 0
	if runErr != nil {
		switch e := runErr.(type) {
		case *ssh.ExitError:
			exitCode = e.ExitStatus()
		case *ssh.ExitMissingError:
			// The session's channel closed without a proper exit
			// status — this is the "status-255" abrupt-drop case
			// killing a critical process on the remote node produces.
			exitCode = -1
		default:
			return Result{}, fmt.Errorf("execplane: running command on %s: %w", addr, runErr)
		}
	}

	r.Log.V(1).Info("remote ssh exec complete", "addr", addr, "command", command, "exitCode", exitCode)
	return classifyShellResult(exitCode, stdout.String(), stderr.String()), nil
}
