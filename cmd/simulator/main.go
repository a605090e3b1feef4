// Command simulator drives a single run of the availability simulator
// against a live cluster: it loads a topology configuration, builds
// the component table, and runs the configured number of iterations,
// injecting real faults via SSH/EC2 or in-cluster exec and recording
// the observed availability to disk.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/JonasCGN/kuberbomber/internal/awsapi"
	"github.com/JonasCGN/kuberbomber/internal/config"
	"github.com/JonasCGN/kuberbomber/internal/discovery"
	"github.com/JonasCGN/kuberbomber/internal/dispatch"
	"github.com/JonasCGN/kuberbomber/internal/execplane"
	"github.com/JonasCGN/kuberbomber/internal/failuregen"
	"github.com/JonasCGN/kuberbomber/internal/heal"
	"github.com/JonasCGN/kuberbomber/internal/healthclient"
	"github.com/JonasCGN/kuberbomber/internal/interrupt"
	"github.com/JonasCGN/kuberbomber/internal/iteration"
	"github.com/JonasCGN/kuberbomber/internal/logging"
	"github.com/JonasCGN/kuberbomber/internal/metrics"
	"github.com/JonasCGN/kuberbomber/internal/recovery"
	"github.com/JonasCGN/kuberbomber/internal/report"
	"github.com/JonasCGN/kuberbomber/internal/topology"
	"golang.org/x/crypto/ssh"
)

func main() {
	var (
		topologyPath  = flag.String("config", "", "path to the topology configuration JSON file")
		outputDir     = flag.String("output-dir", "./simulation-output", "directory results are written to")
		kubeconfig    = flag.String("kubeconfig", "", "path to a kubeconfig file, empty uses in-cluster config")
		namespace     = flag.String("namespace", "default", "namespace the monitored applications run in")
		awsRegion     = flag.String("aws-region", "", "AWS region for EC2/EKS/SSM/FIS clients, empty uses the default chain")
		clusterName   = flag.String("cluster-name", "", "EKS cluster name, used to scope bastion discovery to this cluster's instances; empty skips the EKS check")
		sshUser       = flag.String("ssh-user", "ec2-user", "SSH user for remote node operations")
		sshKeyPath    = flag.String("ssh-key", "", "path to the private key used for remote node SSH operations")
		instanceMap   = flag.String("instance-map", "", "path to a JSON file mapping node name to EC2 instance ID")
		fisTemplates  = flag.String("fis-templates", "", "path to a JSON file mapping operation name to FIS experiment template ID, enables native FIS dispatch for those operations")
		seed1         = flag.Uint64("seed1", 1, "first half of the PCG seed pair, fixed for reproducible runs")
		seed2         = flag.Uint64("seed2", 2, "second half of the PCG seed pair, fixed for reproducible runs")
		metricsAddr   = flag.String("metrics-addr", ":9090", "address the Prometheus /metrics endpoint listens on")
		probePort     = flag.Int("probe-port", 8080, "port probed to determine whether a pod is serving")
		probePath     = flag.String("probe-path", "/healthz", "path probed to determine whether a pod is serving")
		debug         = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	log, err := logging.New(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: building logger: %v\n", err)
		os.Exit(1)
	}

	if *topologyPath == "" {
		log.Error(nil, "-config is required")
		os.Exit(1)
	}

	cfg, err := config.Load(*topologyPath)
	if err != nil {
		log.Error(err, "loading topology config")
		os.Exit(1)
	}

	comps, err := topology.Build(cfg)
	if err != nil {
		log.Error(err, "building topology")
		os.Exit(1)
	}

	metrics.MustRegister()
	go serveMetrics(*metricsAddr, log)

	restCfg, err := loadKubeConfig(*kubeconfig)
	if err != nil {
		log.Error(err, "loading kubernetes client config")
		os.Exit(1)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		log.Error(err, "building kubernetes clientset")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsClient, err := awsapi.New(ctx, *awsRegion)
	if err != nil {
		log.Error(err, "building aws client")
		os.Exit(1)
	}

	instanceIDsByNode, err := loadInstanceMap(*instanceMap)
	if err != nil {
		log.Error(err, "loading instance map")
		os.Exit(1)
	}
	discoveryCache := discovery.New(awsClient, instanceIDsByNode, *clusterName)

	signer, err := loadSigner(*sshKeyPath)
	if err != nil {
		log.Error(err, "loading ssh key")
		os.Exit(1)
	}

	locator := &labelPodLocator{clientset: clientset, namespace: *namespace}
	localPlane, err := execplane.NewLocal(restCfg, locator, log)
	if err != nil {
		log.Error(err, "building local execution plane")
		os.Exit(1)
	}
	remotePlane := execplane.NewRemote(*sshUser, signer, discoveryCache, awsClient, discoveryCache, log)

	fisTemplateIDs, err := loadFISTemplates(*fisTemplates)
	if err != nil {
		log.Error(err, "loading fis templates")
		os.Exit(1)
	}
	plane := &execplane.Router{Local: localPlane, Remote: remotePlane}
	if len(fisTemplateIDs) > 0 {
		plane.FIS = execplane.NewFIS(awsClient, fisTemplateIDs, log)
	}

	disp := dispatch.New(plane, log, *seed1, *seed2)
	gen := failuregen.New(*seed1, *seed2)

	health := healthclient.New(clientset)
	lister := &labelPodLister{clientset: clientset, namespace: *namespace}
	detector := recovery.New(health, lister, int32(*probePort), *probePath)

	appFor := func(comp *topology.Component) (string, string) {
		if comp.Type != topology.TypePod {
			return "", ""
		}
		return *namespace, appNameFor(comp)
	}

	healHandler := heal.New(plane, discoveryCache, detector, log)
	healHandler.States = discoveryCache
	healHandler.ObserveApp = appFor

	rep, err := report.New(*outputDir)
	if err != nil {
		log.Error(err, "creating reporter")
		os.Exit(1)
	}

	driver := iteration.New(comps, gen, disp, detector, healHandler, cfg, rep, log)
	driver.AppFor = appFor

	interruptHandler := interrupt.New(log)
	interruptHandler.Register(driver)
	watchDone := make(chan struct{})
	go func() {
		interruptHandler.Watch(cancel)
		close(watchDone)
	}()
	defer interruptHandler.Stop()

	summaries, err := driver.Run(ctx)
	interrupted := err != nil && ctx.Err() != nil
	if interrupted {
		// Let the interrupt handler finish flushing partial artefacts
		// before the process exits with a clean status.
		<-watchDone
	} else if err != nil {
		log.Error(err, "run failed")
		os.Exit(1)
	}

	if err := rep.WriteConfig(cfg); err != nil {
		log.Error(err, "writing experiment_config.json")
	}

	log.Info("run complete", "iterations", len(summaries), "runID", rep.RunID(), "interrupted", interrupted)
}

func serveMetrics(addr string, log logr.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(err, "metrics server stopped")
	}
}

func loadKubeConfig(path string) (*rest.Config, error) {
	if path != "" {
		return clientcmd.BuildConfigFromFlags("", path)
	}
	return rest.InClusterConfig()
}

func loadSigner(path string) (ssh.Signer, error) {
	if path == "" {
		return nil, fmt.Errorf("simulator: -ssh-key is required for remote node operations")
	}
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simulator: reading ssh key: %w", err)
	}
	return ssh.ParsePrivateKey(key)
}

func loadInstanceMap(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simulator: reading instance map: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("simulator: parsing instance map: %w", err)
	}
	return m, nil
}

// loadFISTemplates reads the operation-to-FIS-experiment-template-ID
// map that enables native FIS dispatch for the operations it lists.
// An empty path disables FIS entirely, preserving the SSH/EC2-only
// execution plane.
func loadFISTemplates(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("simulator: reading fis templates: %w", err)
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("simulator: parsing fis templates: %w", err)
	}
	return m, nil
}

// appNameFor strips the "pod-" prefix topology.Build applies when
// naming pod components, recovering the application name used for
// label selection and health probing.
func appNameFor(comp *topology.Component) string {
	const prefix = "pod-"
	if len(comp.Name) > len(prefix) && comp.Name[:len(prefix)] == prefix {
		return comp.Name[len(prefix):]
	}
	return comp.Name
}

// labelPodLister lists pods by an "app" label, used by the recovery
// detector to find every pod backing an application.
type labelPodLister struct {
	clientset kubernetes.Interface
	namespace string
}

func (l *labelPodLister) ListPods(ctx context.Context, namespace, app string) ([]corev1.Pod, error) {
	if namespace == "" {
		namespace = l.namespace
	}
	list, err := l.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "app=" + app,
	})
	if err != nil {
		return nil, err
	}
	return list.Items, nil
}

// labelPodLocator resolves a pod/container component to a live pod by
// the same "app" label convention labelPodLister uses, picking the
// first matching pod's first container.
type labelPodLocator struct {
	clientset kubernetes.Interface
	namespace string
}

func (l *labelPodLocator) Locate(comp *topology.Component) (namespace, pod, container string, err error) {
	app := appNameFor(comp)
	list, err := l.clientset.CoreV1().Pods(l.namespace).List(context.Background(), metav1.ListOptions{
		LabelSelector: "app=" + app,
	})
	if err != nil {
		return "", "", "", fmt.Errorf("simulator: listing pods for %s: %w", app, err)
	}
	if len(list.Items) == 0 {
		return "", "", "", fmt.Errorf("simulator: no pods found for app %s", app)
	}
	p := list.Items[0]
	if len(p.Spec.Containers) == 0 {
		return "", "", "", fmt.Errorf("simulator: pod %s has no containers", p.Name)
	}
	return l.namespace, p.Name, p.Spec.Containers[0].Name, nil
}
