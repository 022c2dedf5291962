package k8s

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/version"
	discoveryfake "k8s.io/client-go/discovery/fake"
	dynamicfake "k8s.io/client-go/dynamic/fake"
	kubefake "k8s.io/client-go/kubernetes/fake"
	clienttesting "k8s.io/client-go/testing"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"
	metricsfake "k8s.io/metrics/pkg/client/clientset/versioned/fake"
)

func newConfigMap(namespace, name string) *unstructured.Unstructured {
	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "v1",
		"kind":       "ConfigMap",
		"metadata": map[string]interface{}{
			"name":      name,
			"namespace": namespace,
			"managedFields": []interface{}{
				map[string]interface{}{"manager": "kubectl"},
			},
		},
		"data": map[string]interface{}{"key": "value"},
	}}
}

func newDynamicClient(objects ...runtime.Object) *dynamicfake.FakeDynamicClient {
	listKinds := map[schema.GroupVersionResource]string{}
	for _, info := range builtinKinds() {
		listKinds[info.GVR] = info.GVK.Kind + "List"
	}
	return dynamicfake.NewSimpleDynamicClientWithCustomListKinds(runtime.NewScheme(), listKinds, objects...)
}

func kind(t *testing.T, k ResourceKind) KindInfo {
	t.Helper()
	info, ok := NewRegistry().Lookup(k)
	require.True(t, ok)
	return info
}

func TestClientList(t *testing.T) {
	dyn := newDynamicClient(
		newConfigMap("default", "a"),
		newConfigMap("default", "b"),
		newConfigMap("kube-system", "c"),
	)
	client := NewClient(Clients{Dynamic: dyn})
	ctx := context.Background()

	all, err := client.List(ctx, kind(t, KindConfigMap), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	scoped, err := client.List(ctx, kind(t, KindConfigMap), "default")
	require.NoError(t, err)
	require.Len(t, scoped, 2)
	for _, item := range scoped {
		assert.Equal(t, "default", item.Namespace)
		assert.Equal(t, "1", item.Fields["Data"])
	}
}

func TestClientListClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Class
	}{
		{
			name:     "resource type not served",
			err:      apierrors.NewNotFound(schema.GroupResource{Resource: "configmaps"}, ""),
			expected: Unavailable,
		},
		{
			name:     "method not supported",
			err:      apierrors.NewMethodNotSupported(schema.GroupResource{Resource: "configmaps"}, "list"),
			expected: Unavailable,
		},
		{
			name:     "forbidden",
			err:      apierrors.NewForbidden(schema.GroupResource{Resource: "configmaps"}, "", errors.New("rbac")),
			expected: Transient,
		},
		{
			name:     "server timeout",
			err:      apierrors.NewServerTimeout(schema.GroupResource{Resource: "configmaps"}, "list", 1),
			expected: Transient,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dyn := newDynamicClient()
			dyn.PrependReactor("list", "configmaps", func(action clienttesting.Action) (bool, runtime.Object, error) {
				return true, nil, tt.err
			})
			client := NewClient(Clients{Dynamic: dyn})

			items, err := client.List(context.Background(), kind(t, KindConfigMap), "")
			require.Error(t, err)
			assert.Nil(t, items)
			assert.Equal(t, tt.expected, ClassOf(err))

			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, KindConfigMap, fe.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClientDocumentNotFound(t *testing.T) {
	client := NewClient(Clients{Dynamic: newDynamicClient(), Kube: kubefake.NewSimpleClientset()})

	for _, format := range []DocumentFormat{FormatYAML, FormatDescribe} {
		doc, err := client.Document(context.Background(), kind(t, KindConfigMap), "default", "missing", format)
		assert.Empty(t, doc)
		assert.Equal(t, NotFound, ClassOf(err), string(format))
	}
}

func TestClientDocumentYAML(t *testing.T) {
	client := NewClient(Clients{Dynamic: newDynamicClient(newConfigMap("default", "cfg"))})

	doc, err := client.Document(context.Background(), kind(t, KindConfigMap), "default", "cfg", FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, doc, "kind: ConfigMap")
	assert.Contains(t, doc, "name: cfg")
	assert.Contains(t, doc, "key: value")
	assert.NotContains(t, doc, "managedFields")
}

func TestClientDocumentDescribeFallback(t *testing.T) {
	client := NewClient(Clients{
		Dynamic: newDynamicClient(newConfigMap("default", "cfg")),
		Kube:    kubefake.NewSimpleClientset(),
	})

	doc, err := client.Document(context.Background(), kind(t, KindConfigMap), "default", "cfg", FormatDescribe)
	require.NoError(t, err)
	assert.Contains(t, doc, "Name:         cfg")
	assert.Contains(t, doc, "Namespace:    default")
	assert.Contains(t, doc, "Kind:         ConfigMap")
	assert.Contains(t, doc, "Events:\n  <none>")
}

func TestClientDocumentUnknownFormat(t *testing.T) {
	client := NewClient(Clients{Dynamic: newDynamicClient(newConfigMap("default", "cfg"))})

	_, err := client.Document(context.Background(), kind(t, KindConfigMap), "default", "cfg", "json")
	assert.Error(t, err)
}

func newMetricsClient(nodeErr error) *metricsfake.Clientset {
	client := metricsfake.NewSimpleClientset()
	client.PrependReactor("list", "*", func(action clienttesting.Action) (bool, runtime.Object, error) {
		switch action.GetResource().Resource {
		case "nodes", "nodemetricses":
			if nodeErr != nil {
				return true, nil, nodeErr
			}
			return true, &metricsv1beta1.NodeMetricsList{Items: []metricsv1beta1.NodeMetrics{
				{
					ObjectMeta: metav1.ObjectMeta{Name: "node-a"},
					Usage: corev1.ResourceList{
						corev1.ResourceCPU:    resource.MustParse("500m"),
						corev1.ResourceMemory: resource.MustParse("1Gi"),
					},
				},
			}}, nil
		case "pods", "podmetricses":
			return true, &metricsv1beta1.PodMetricsList{Items: []metricsv1beta1.PodMetrics{
				{
					ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
					Containers: []metricsv1beta1.ContainerMetrics{
						{Name: "app", Usage: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("100m"),
							corev1.ResourceMemory: resource.MustParse("64Mi"),
						}},
						{Name: "sidecar", Usage: corev1.ResourceList{
							corev1.ResourceCPU:    resource.MustParse("50m"),
							corev1.ResourceMemory: resource.MustParse("32Mi"),
						}},
					},
				},
			}}, nil
		}
		return false, nil, nil
	})
	return client
}

func TestClientMetrics(t *testing.T) {
	client := NewClient(Clients{Metrics: newMetricsClient(nil)})

	sample, err := client.Metrics(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, sample.Nodes, 1)
	require.Len(t, sample.Pods, 1)

	assert.Equal(t, int64(500), sample.Nodes[0].MilliCPU)
	assert.Equal(t, int64(1024*1024*1024), sample.Nodes[0].MemoryBytes)
	assert.Equal(t, int64(150), sample.Pods[0].MilliCPU)
	assert.Equal(t, int64(96*1024*1024), sample.Pods[0].MemoryBytes)
	assert.False(t, sample.CollectedAt.IsZero())
}

func TestClientMetricsAbsent(t *testing.T) {
	notInstalled := apierrors.NewNotFound(schema.GroupResource{Group: "metrics.k8s.io", Resource: "nodes"}, "")
	client := NewClient(Clients{Metrics: newMetricsClient(notInstalled)})

	sample, err := client.Metrics(context.Background(), "")
	assert.Nil(t, sample)
	assert.Equal(t, MetricsAbsent, ClassOf(err))

	_, err = NewClient(Clients{}).Metrics(context.Background(), "")
	assert.Equal(t, MetricsAbsent, ClassOf(err))
}

func TestClientStreamLogs(t *testing.T) {
	kube := kubefake.NewSimpleClientset(&corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "web", Namespace: "default"},
	})
	client := NewClient(Clients{Kube: kube})

	body, err := client.StreamLogs(context.Background(), LogTarget{
		Namespace: "default",
		Pod:       "web",
		Container: "app",
		TailLines: 10,
	})
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestLogTargetString(t *testing.T) {
	assert.Equal(t, "default/web/app", LogTarget{Namespace: "default", Pod: "web", Container: "app"}.String())
	assert.Equal(t, "default/web (previous)", LogTarget{Namespace: "default", Pod: "web", Previous: true}.String())
}

// preferredDiscovery overrides ServerPreferredResources, which FakeDiscovery
// does not implement
type preferredDiscovery struct {
	*discoveryfake.FakeDiscovery
	resources []*metav1.APIResourceList
}

func (d *preferredDiscovery) ServerPreferredResources() ([]*metav1.APIResourceList, error) {
	return d.resources, nil
}

func TestClientDiscoverKinds(t *testing.T) {
	disc := &preferredDiscovery{
		FakeDiscovery: &discoveryfake.FakeDiscovery{Fake: &clienttesting.Fake{}},
		resources: []*metav1.APIResourceList{
			{
				GroupVersion: "v1",
				APIResources: []metav1.APIResource{
					{Name: "pods", Kind: "Pod", Namespaced: true, Verbs: []string{"list", "get"}},
					{Name: "pods/log", Kind: "Pod", Namespaced: true, Verbs: []string{"get"}},
				},
			},
			{
				GroupVersion: "cert-manager.io/v1",
				APIResources: []metav1.APIResource{
					{Name: "certificates", Kind: "Certificate", Namespaced: true, Verbs: []string{"list", "get"}},
					{Name: "clusterissuers", Kind: "ClusterIssuer", Namespaced: false, Verbs: []string{"list"}},
					{Name: "challenges", Kind: "Challenge", Namespaced: true, Verbs: []string{"create"}},
				},
			},
			{
				// a CRD reusing a built-in kind name is excluded
				GroupVersion: "example.com/v1",
				APIResources: []metav1.APIResource{
					{Name: "deployments", Kind: "Deployment", Namespaced: true, Verbs: []string{"list"}},
				},
			},
		},
	}
	client := NewClient(Clients{Discovery: disc})

	kinds, err := client.DiscoverKinds(context.Background())
	require.NoError(t, err)
	require.Len(t, kinds, 2)

	assert.Equal(t, ResourceKind("certificates.cert-manager.io"), kinds[0].Kind)
	assert.True(t, kinds[0].Namespaced)
	assert.True(t, kinds[0].Custom)
	assert.Equal(t, "Certificate", kinds[0].GVK.Kind)
	assert.Equal(t, ResourceKind("clusterissuers.cert-manager.io"), kinds[1].Kind)
	assert.False(t, kinds[1].Namespaced)

	registry := NewRegistry()
	for _, k := range kinds {
		assert.True(t, registry.RegisterCustom(k))
	}
	assert.False(t, registry.RegisterCustom(CustomKind(schema.GroupVersionResource{Version: "v1", Resource: "pods"}, "Pod", true)))
	assert.Len(t, registry.All(), 25)
}

func TestClientDiscoverKindsCancelled(t *testing.T) {
	fake := &clienttesting.Fake{}
	client := NewClient(Clients{Discovery: &discoveryfake.FakeDiscovery{Fake: fake}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	kinds, err := client.DiscoverKinds(ctx)
	require.Error(t, err)
	assert.Equal(t, Connectivity, ClassOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, kinds)
	assert.Empty(t, fake.Actions())
}

func TestClientPing(t *testing.T) {
	disc := &discoveryfake.FakeDiscovery{
		Fake:               &clienttesting.Fake{},
		FakedServerVersion: &version.Info{GitVersion: "v1.34.1"},
	}
	client := NewClient(Clients{Discovery: disc})

	v, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1.34.1", v)

	disc.PrependReactor("get", "version", func(action clienttesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("connection refused")
	})
	_, err = client.Ping(context.Background())
	assert.Equal(t, Connectivity, ClassOf(err))
}
