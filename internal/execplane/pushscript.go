package execplane

import (
	"context"
	"fmt"
	"strings"

	scp "github.com/bramvdbogaerde/go-scp"
	"golang.org/x/crypto/ssh"
)

// pushAndRun copies a small shell script to the remote node over SCP,
// executes it and then removes it. Invoke uses it for every node-local
// operation, wrapping the operation's shell command in the script.
func (r *Remote) pushAndRun(ctx context.Context, addr, scriptName, scriptBody string) (Result, error) {
	dialer := ssh.ClientConfig{
		User:            r.SSHUser,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(r.Signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         r.ConnectTimeout,
	}

	client, err := ssh.Dial("tcp", addr+":22", &dialer)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: ssh dial for scp push to %s: %w", addr, err)
	}
	defer client.Close()

	scpClient, err := scp.NewClientBySSH(client)
	if err != nil {
		return Result{}, fmt.Errorf("execplane: building scp client for %s: %w", addr, err)
	}
	defer scpClient.Close()

	remotePath := "/tmp/" + scriptName
	if err := scpClient.CopyFile(ctx, strings.NewReader(scriptBody), remotePath, "0755"); err != nil {
		return Result{}, fmt.Errorf("execplane: scp push to %s: %w", addr, err)
	}

	return r.runSSH(ctx, addr, "sh "+remotePath+"; rm -f "+remotePath)
}
