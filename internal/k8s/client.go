package k8s

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	metricsclientset "k8s.io/metrics/pkg/client/clientset/versioned"
)

// Cluster is everything the engine needs from one cluster connection. All
// failures come back as *FetchError.
type Cluster interface {
	List(ctx context.Context, info KindInfo, namespace string) ([]Item, error)
	Document(ctx context.Context, info KindInfo, namespace, name string, format DocumentFormat) (string, error)
	Metrics(ctx context.Context, namespace string) (*MetricsSample, error)
	StreamLogs(ctx context.Context, target LogTarget) (io.ReadCloser, error)
	DiscoverKinds(ctx context.Context) ([]KindInfo, error)
	Ping(ctx context.Context) (string, error)
}

// Connector opens a connection for a named kubeconfig context
type Connector interface {
	Connect(ctx context.Context, contextName string) (Cluster, error)
}

// Clients bundles the client-go clients a Client is built from
type Clients struct {
	Dynamic   dynamic.Interface
	Kube      kubernetes.Interface
	Metrics   metricsclientset.Interface
	Discovery discovery.DiscoveryInterface
	// RESTConfig enables the kubectl describers; nil falls back to the
	// built-in describe output
	RESTConfig *rest.Config
}

// Client implements Cluster on top of client-go
type Client struct {
	dynamic    dynamic.Interface
	kube       kubernetes.Interface
	metrics    metricsclientset.Interface
	discovery  discovery.DiscoveryInterface
	restConfig *rest.Config
}

// NewClient creates a client from already-built clients
func NewClient(c Clients) *Client {
	disc := c.Discovery
	if disc == nil && c.Kube != nil {
		disc = c.Kube.Discovery()
	}
	return &Client{
		dynamic:    c.Dynamic,
		kube:       c.Kube,
		metrics:    c.Metrics,
		discovery:  disc,
		restConfig: c.RESTConfig,
	}
}

// KubeconfigConnector builds clients from a kubeconfig file
type KubeconfigConnector struct {
	Path           string
	RequestTimeout time.Duration
}

// DefaultKubeconfigPath returns $KUBECONFIG or ~/.kube/config
func DefaultKubeconfigPath() string {
	if env := os.Getenv("KUBECONFIG"); env != "" {
		return filepath.SplitList(env)[0]
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".kube", "config")
	}
	return ""
}

// Connect builds the clients for a context. It does not talk to the cluster;
// callers use Ping for the connectivity check.
func (k *KubeconfigConnector) Connect(ctx context.Context, contextName string) (Cluster, error) {
	path := k.Path
	if path == "" {
		path = DefaultKubeconfigPath()
	}

	loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: path}
	configOverrides := &clientcmd.ConfigOverrides{}
	if contextName != "" {
		configOverrides.CurrentContext = contextName
	}

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules,
		configOverrides,
	).ClientConfig()
	if err != nil {
		return nil, classifyConnect(fmt.Errorf("error building kubeconfig: %w", err))
	}
	config.Timeout = k.RequestTimeout
	// every kind polls independently
	config.QPS = 50
	config.Burst = 100

	dynamicClient, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, classifyConnect(fmt.Errorf("error creating dynamic client: %w", err))
	}

	metricsClient, err := metricsclientset.NewForConfig(config)
	if err != nil {
		return nil, classifyConnect(fmt.Errorf("error creating metrics client: %w", err))
	}

	// Use protobuf for better performance on the typed client
	protoConfig := rest.CopyConfig(config)
	protoConfig.ContentType = "application/vnd.kubernetes.protobuf"
	clientset, err := kubernetes.NewForConfig(protoConfig)
	if err != nil {
		return nil, classifyConnect(fmt.Errorf("error creating clientset: %w", err))
	}

	return NewClient(Clients{
		Dynamic:    dynamicClient,
		Kube:       clientset,
		Metrics:    metricsClient,
		RESTConfig: config,
	}), nil
}

// Ping checks connectivity and returns the server version
func (c *Client) Ping(ctx context.Context) (string, error) {
	type result struct {
		version string
		err     error
	}
	// ServerVersion takes no context
	done := make(chan result, 1)
	go func() {
		info, err := c.discovery.ServerVersion()
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{version: info.GitVersion}
	}()

	select {
	case <-ctx.Done():
		return "", classifyConnect(ctx.Err())
	case r := <-done:
		if r.err != nil {
			return "", classifyConnect(fmt.Errorf("server version: %w", r.err))
		}
		return r.version, nil
	}
}
