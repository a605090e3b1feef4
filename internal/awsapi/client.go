// Package awsapi provides a trimmed AWS SDK v2 client bundle for the
// services the execution plane and discovery cache need: EC2 (node
// lookup), EKS (cluster/control-plane discovery), SSM (remote command
// execution fallback), FIS (fault-injection experiments) and STS
// (credential-chain verification at startup).
//
// It bundles one struct of concrete *xxx.Client fields, constructed
// once from a shared aws.Config, rather than hand-rolled per-call
// interfaces, trimmed down to only the services this module drives.
package awsapi

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	ekstypes "github.com/aws/aws-sdk-go-v2/service/eks/types"
	"github.com/aws/aws-sdk-go-v2/service/fis"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// Client bundles the AWS SDK clients used by the execution plane and
// discovery cache.
type Client struct {
	EC2 *ec2.Client
	EKS *eks.Client
	SSM *ssm.Client
	FIS *fis.Client
	STS *sts.Client
}

// New loads the default AWS config chain (env, shared config, IMDS),
// constructs a Client bundle from it, and verifies the resolved
// credentials actually resolve to an identity before returning —
// failing fast here beats discovering a bad credential chain several
// iterations into a run.
func New(ctx context.Context, region string) (*Client, error) {
	opts := []func(*config.LoadOptions) error{}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("awsapi: loading default config: %w", err)
	}
	c := &Client{
		EC2: ec2.NewFromConfig(cfg),
		EKS: eks.NewFromConfig(cfg),
		SSM: ssm.NewFromConfig(cfg),
		FIS: fis.NewFromConfig(cfg),
		STS: sts.NewFromConfig(cfg),
	}
	if _, err := c.VerifyCredentials(ctx); err != nil {
		return nil, fmt.Errorf("awsapi: verifying credentials: %w", err)
	}
	return c, nil
}

// VerifyCredentials calls STS GetCallerIdentity and returns the
// resolved identity ARN, used at startup to fail fast on a broken or
// expired credential chain rather than only surfacing the problem on
// the first EC2/EKS/SSM/FIS call mid-run.
func (c *Client) VerifyCredentials(ctx context.Context) (string, error) {
	out, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	if out.Arn == nil {
		return "", fmt.Errorf("awsapi: sts returned no caller identity arn")
	}
	return *out.Arn, nil
}

// DescribeInstancesByID batches an EC2 DescribeInstances call for the
// given instance IDs, the shape the discovery cache's refresh needs.
func (c *Client) DescribeInstancesByID(ctx context.Context, instanceIDs []string) (*ec2.DescribeInstancesOutput, error) {
	return c.EC2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: instanceIDs,
	})
}

// DescribeCluster fetches the EKS cluster descriptor, used by the
// discovery cache to confirm the cluster is active and to scope its
// bastion-tag scan to instances actually belonging to it.
func (c *Client) DescribeCluster(ctx context.Context, name string) (*eks.DescribeClusterOutput, error) {
	return c.EKS.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: &name})
}

// ClusterActive reports whether the named EKS cluster's Status is
// ACTIVE, the precondition the discovery cache requires before
// trusting any bastion/control-plane address it derives from the
// cluster's member instances.
func (c *Client) ClusterActive(ctx context.Context, name string) (bool, error) {
	out, err := c.DescribeCluster(ctx, name)
	if err != nil {
		return false, err
	}
	return out.Cluster != nil && out.Cluster.Status == ekstypes.ClusterStatusActive, nil
}

// StopInstance issues an EC2 StopInstances call for a single instance,
// the fallback stop path the remote execution plane uses when a node
// can't be reached over SSH to shut itself down cleanly.
func (c *Client) StopInstance(ctx context.Context, instanceID string) error {
	_, err := c.EC2.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: []string{instanceID}})
	return err
}

// StartInstance issues an EC2 StartInstances call for a single
// instance, the self-healing half of a shutdown-class operation: the
// guest OS can't bring itself back up once powered off, so recovery
// goes through the AWS API rather than SSH.
func (c *Client) StartInstance(ctx context.Context, instanceID string) error {
	_, err := c.EC2.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: []string{instanceID}})
	return err
}

// runShellDocument is the SSM document used to run an arbitrary shell
// command on an instance, the same document the AWS console's "Run
// Command" action uses for "AWS-RunShellScript".
const runShellDocument = "AWS-RunShellScript"

// SendCommand dispatches command to instanceID via SSM Run Command,
// used as a remote-exec transport when no direct SSH route to the
// instance exists. Returns the SSM command ID, which GetCommandResult
// polls for completion.
func (c *Client) SendCommand(ctx context.Context, instanceID, command string) (string, error) {
	out, err := c.SSM.SendCommand(ctx, &ssm.SendCommandInput{
		DocumentName: awsString(runShellDocument),
		InstanceIds:  []string{instanceID},
		Parameters: map[string][]string{
			"commands": {command},
		},
	})
	if err != nil {
		return "", err
	}
	if out.Command == nil || out.Command.CommandId == nil {
		return "", fmt.Errorf("awsapi: ssm send-command returned no command id")
	}
	return *out.Command.CommandId, nil
}

// GetCommandResult fetches the current status and combined output of
// an SSM Run Command invocation. status is one of the
// ssm.CommandInvocationStatus values ("Success", "Failed", "InProgress",
// ...); callers poll until it reaches a terminal value.
func (c *Client) GetCommandResult(ctx context.Context, instanceID, commandID string) (status, output string, err error) {
	out, err := c.SSM.GetCommandInvocation(ctx, &ssm.GetCommandInvocationInput{
		CommandId:  &commandID,
		InstanceId: &instanceID,
	})
	if err != nil {
		return "", "", err
	}
	combined := ""
	if out.StandardOutputContent != nil {
		combined = *out.StandardOutputContent
	}
	if out.StandardErrorContent != nil && *out.StandardErrorContent != "" {
		combined += "\n" + *out.StandardErrorContent
	}
	return string(out.Status), combined, nil
}

// StartExperiment starts an AWS FIS experiment from a pre-defined
// template, the native-cloud alternative to an SSH-delivered kill
// script: instead of reaching into the guest, it lets FIS carry out
// the equivalent disruption (e.g. an EC2 stop-instances or a network
// black-hole action) through its own IAM role. Returns the started
// experiment's ID.
func (c *Client) StartExperiment(ctx context.Context, templateID string) (string, error) {
	out, err := c.FIS.StartExperiment(ctx, &fis.StartExperimentInput{
		ExperimentTemplateId: &templateID,
	})
	if err != nil {
		return "", err
	}
	if out.Experiment == nil || out.Experiment.Id == nil {
		return "", fmt.Errorf("awsapi: fis start-experiment returned no experiment id")
	}
	return *out.Experiment.Id, nil
}

func awsString(s string) *string { return &s }
