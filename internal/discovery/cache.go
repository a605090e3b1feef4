// Package discovery implements the discovery cache: a TTL-memoised map
// from node name to public IP address, plus the bastion (control-plane)
// address, refreshed from EC2 in batches. When a cluster name is
// configured, bastion discovery first confirms the EKS cluster is
// ACTIVE and then scopes its tag scan to instances tagged as members
// of that cluster, rather than trusting any instance with the
// control-plane tag regardless of which cluster it belongs to.
//
// The cache is a constructed value owned by the run — the entry point
// constructs one per run and threads it explicitly through the
// execution plane and the heal handler — never a package-level variable.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/JonasCGN/kuberbomber/internal/awsapi"
	"github.com/JonasCGN/kuberbomber/internal/topology"
)

const (
	defaultTTL           = 60 * time.Second
	bastionKey           = "bastion-address"
	nodeMapKey           = "node-public-ip-map"
	controlPlaneTagKey   = "kubernetes.io/role"
	controlPlaneTagValue = "master"
	eksClusterTagKey     = "aws:eks:cluster-name"
)

// Cache is the run-scoped discovery cache. Zero value is not usable;
// construct with New.
type Cache struct {
	aws *awsapi.Client
	ttl time.Duration

	c *gocache.Cache

	// refreshMu serialises concurrent refreshes so that only one
	// EC2 batch describe is in flight at a time, matching the
	// original's cache-check-then-populate critical section.
	refreshMu sync.Mutex

	// instanceIDsByNode lets the refresh batch DescribeInstances by
	// ID instead of scanning every instance in the account.
	instanceIDsByNode map[string]string

	// clusterName, if set, scopes bastion discovery to instances
	// tagged as members of this EKS cluster and requires the cluster
	// to be ACTIVE before trusting the scan at all.
	clusterName string
}

// New constructs a Cache with the default 60-second TTL. clusterName
// may be empty, in which case bastion discovery falls back to the
// bare control-plane tag scan with no EKS cluster-membership check.
func New(client *awsapi.Client, instanceIDsByNode map[string]string, clusterName string) *Cache {
	return &Cache{
		aws:               client,
		ttl:               defaultTTL,
		c:                 gocache.New(defaultTTL, 2*defaultTTL),
		instanceIDsByNode: instanceIDsByNode,
		clusterName:       clusterName,
	}
}

// BastionAddress returns the cached bastion address, refreshing if the
// TTL has expired. Implements execplane.NodeResolver.
func (d *Cache) BastionAddress(ctx context.Context) (string, error) {
	if v, ok := d.c.Get(bastionKey); ok {
		return v.(string), nil
	}
	if err := d.refresh(ctx); err != nil {
		return "", err
	}
	v, ok := d.c.Get(bastionKey)
	if !ok {
		return "", fmt.Errorf("discovery: bastion address not found after refresh")
	}
	return v.(string), nil
}

// NodeAddress returns the public address of the node hosting comp,
// refreshing the cache if stale or if the node isn't yet known.
// Implements execplane.NodeResolver.
func (d *Cache) NodeAddress(ctx context.Context, comp *topology.Component) (string, error) {
	nodeMap, err := d.nodeMap(ctx)
	if err != nil {
		return "", err
	}
	nodeName := nodeNameFor(comp)
	addr, ok := nodeMap[nodeName]
	if !ok {
		// One forced refresh in case the node was just discovered.
		if err := d.Refresh(ctx); err != nil {
			return "", err
		}
		nodeMap, _ = d.nodeMap(ctx)
		addr, ok = nodeMap[nodeName]
		if !ok {
			return "", fmt.Errorf("discovery: no public address known for node %q", nodeName)
		}
	}
	return addr, nil
}

func (d *Cache) nodeMap(ctx context.Context) (map[string]string, error) {
	if v, ok := d.c.Get(nodeMapKey); ok {
		return v.(map[string]string), nil
	}
	if err := d.refresh(ctx); err != nil {
		return nil, err
	}
	v, ok := d.c.Get(nodeMapKey)
	if !ok {
		return nil, fmt.Errorf("discovery: node map not populated after refresh")
	}
	return v.(map[string]string), nil
}

// InstanceID returns the EC2 instance ID backing comp's node, used by
// the remote execution plane to issue instance-level stop/start calls
// for shutdown-class operations rather than in-guest shell commands.
func (d *Cache) InstanceID(comp *topology.Component) (string, error) {
	id, ok := d.instanceIDsByNode[nodeNameFor(comp)]
	if !ok {
		return "", fmt.Errorf("discovery: no instance ID known for node %q", nodeNameFor(comp))
	}
	return id, nil
}

// InstanceState returns the current EC2 instance-state name (e.g.
// "stopped", "running") for the instance backing comp's node, used by
// the heal handler to bound how long it waits for a shutdown-class
// stop/start to actually take effect. Always queries EC2 directly
// rather than serving from the TTL cache: instance state changes on
// the timescale the heal handler polls at, faster than the cache's
// refresh interval.
func (d *Cache) InstanceState(ctx context.Context, comp *topology.Component) (string, error) {
	id, err := d.InstanceID(comp)
	if err != nil {
		return "", err
	}
	out, err := d.aws.DescribeInstancesByID(ctx, []string{id})
	if err != nil {
		return "", fmt.Errorf("discovery: describing instance %s: %w", id, err)
	}
	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			if inst.InstanceId != nil && *inst.InstanceId == id && inst.State != nil {
				return string(inst.State.Name), nil
			}
		}
	}
	return "", fmt.Errorf("discovery: instance %s not present in describe response", id)
}

// Refresh forces a synchronous refresh regardless of TTL, used by the
// heal handler after shutdown/restart cycles to refresh the discovery
// cache before observing recovery.
func (d *Cache) Refresh(ctx context.Context) error {
	d.c.Delete(nodeMapKey)
	d.c.Delete(bastionKey)
	return d.refresh(ctx)
}

func (d *Cache) refresh(ctx context.Context) error {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	// Re-check under the lock: another goroutine may have just
	// refreshed while we were waiting.
	if _, ok := d.c.Get(nodeMapKey); ok {
		if _, ok := d.c.Get(bastionKey); ok {
			return nil
		}
	}

	if d.clusterName != "" {
		active, err := d.aws.ClusterActive(ctx, d.clusterName)
		if err != nil {
			return fmt.Errorf("discovery: describing eks cluster %s: %w", d.clusterName, err)
		}
		if !active {
			return fmt.Errorf("discovery: eks cluster %s is not active, refusing to trust its instance tags", d.clusterName)
		}
	}

	ids := lo.Values(d.instanceIDsByNode)
	if len(ids) == 0 {
		return fmt.Errorf("discovery: no instance IDs configured to refresh")
	}

	out, err := d.aws.DescribeInstancesByID(ctx, ids)
	if err != nil {
		return fmt.Errorf("discovery: describing instances: %w", err)
	}

	nodeMap := make(map[string]string, len(d.instanceIDsByNode))
	idToPublicIP := make(map[string]string)
	var bastionAddr string

	for _, reservation := range out.Reservations {
		for _, inst := range reservation.Instances {
			if inst.InstanceId == nil || inst.PublicIpAddress == nil {
				continue
			}
			idToPublicIP[*inst.InstanceId] = *inst.PublicIpAddress

			var isControlPlane, isClusterMember bool
			for _, tag := range inst.Tags {
				if tag.Key == nil || tag.Value == nil {
					continue
				}
				if *tag.Key == controlPlaneTagKey && *tag.Value == controlPlaneTagValue {
					isControlPlane = true
				}
				if d.clusterName != "" && *tag.Key == eksClusterTagKey && *tag.Value == d.clusterName {
					isClusterMember = true
				}
			}
			if isControlPlane && (d.clusterName == "" || isClusterMember) {
				bastionAddr = *inst.PublicIpAddress
			}
		}
	}

	for node, id := range d.instanceIDsByNode {
		if ip, ok := idToPublicIP[id]; ok {
			nodeMap[node] = ip
		}
	}
	if bastionAddr == "" {
		// Fall back to the first discovered address rather than
		// failing outright; the caller can still retry.
		for _, ip := range nodeMap {
			bastionAddr = ip
			break
		}
	}

	d.c.Set(nodeMapKey, nodeMap, gocache.DefaultExpiration)
	if bastionAddr != "" {
		d.c.Set(bastionKey, bastionAddr, gocache.DefaultExpiration)
	}
	return nil
}

const workerNodePrefix = "worker_node-"

// nodeNameFor recovers the bare node identifier (the key used in
// instanceIDsByNode) from a worker-node component or one of its
// kubelet/proxy/runtime sub-components.
func nodeNameFor(comp *topology.Component) string {
	switch comp.Type {
	case topology.TypeWorkerNode:
		return strings.TrimPrefix(comp.Name, workerNodePrefix)
	case topology.TypeWorkerRuntime, topology.TypeWorkerProxy, topology.TypeWorkerKubelet:
		return strings.TrimPrefix(comp.ParentID, workerNodePrefix)
	default:
		return comp.Name
	}
}
