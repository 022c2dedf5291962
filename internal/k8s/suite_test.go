//go:build envtest

package k8s

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
	"sigs.k8s.io/controller-runtime/pkg/envtest"
)

var (
	testEnv    *envtest.Environment
	testCfg    *rest.Config
	testClient *kubernetes.Clientset
)

// TestMain starts one API server for the whole suite. Run with
// `go test -tags envtest ./internal/k8s/...` and KUBEBUILDER_ASSETS set.
func TestMain(m *testing.M) {
	testEnv = &envtest.Environment{
		CRDDirectoryPaths:     []string{},
		ErrorIfCRDPathMissing: false,
	}

	var err error
	testCfg, err = testEnv.Start()
	if err != nil {
		fmt.Printf("Failed to start envtest: %v\n", err)
		os.Exit(1)
	}

	testClient, err = kubernetes.NewForConfig(testCfg)
	if err != nil {
		fmt.Printf("Failed to create clientset: %v\n", err)
		_ = testEnv.Stop()
		os.Exit(1)
	}

	code := m.Run()

	if err := testEnv.Stop(); err != nil {
		fmt.Printf("Failed to stop envtest: %v\n", err)
		os.Exit(1)
	}
	os.Exit(code)
}

// createTestNamespace creates a unique namespace for test isolation
func createTestNamespace(t *testing.T) string {
	t.Helper()

	created, err := testClient.CoreV1().Namespaces().Create(context.Background(), &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{GenerateName: "test-"},
	}, metav1.CreateOptions{})
	require.NoError(t, err, "Failed to create test namespace")

	t.Cleanup(func() {
		_ = testClient.CoreV1().Namespaces().Delete(context.Background(), created.Name, metav1.DeleteOptions{})
	})
	return created.Name
}

// createTestKubeconfig writes a kubeconfig pointing at the test API server
func createTestKubeconfig(t *testing.T, contexts ...string) string {
	t.Helper()

	config := clientcmdapi.NewConfig()
	config.Clusters["test-cluster"] = &clientcmdapi.Cluster{
		Server:                   testCfg.Host,
		CertificateAuthorityData: testCfg.CAData,
		InsecureSkipTLSVerify:    testCfg.Insecure,
	}
	config.AuthInfos["test-user"] = &clientcmdapi.AuthInfo{
		ClientCertificateData: testCfg.CertData,
		ClientKeyData:         testCfg.KeyData,
		Token:                 testCfg.BearerToken,
	}
	for _, name := range contexts {
		config.Contexts[name] = &clientcmdapi.Context{
			Cluster:   "test-cluster",
			AuthInfo:  "test-user",
			Namespace: "default",
		}
	}
	if len(contexts) > 0 {
		config.CurrentContext = contexts[0]
	}

	path := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, clientcmd.WriteToFile(*config, path))
	return path
}

func connectTestCluster(t *testing.T) Cluster {
	t.Helper()
	connector := &KubeconfigConnector{Path: createTestKubeconfig(t, "envtest")}
	cluster, err := connector.Connect(context.Background(), "envtest")
	require.NoError(t, err)
	return cluster
}

func TestEnvtestPing(t *testing.T) {
	cluster := connectTestCluster(t)

	v, err := cluster.Ping(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestEnvtestListAndDocuments(t *testing.T) {
	ns := createTestNamespace(t)
	ctx := context.Background()

	_, err := testClient.CoreV1().ConfigMaps(ns).Create(ctx, &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "app-config"},
		Data:       map[string]string{"a": "1", "b": "2"},
	}, metav1.CreateOptions{})
	require.NoError(t, err)

	cluster := connectTestCluster(t)
	info, ok := NewRegistry().Lookup(KindConfigMap)
	require.True(t, ok)

	items, err := cluster.List(ctx, info, ns)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "app-config", items[0].Name)
	assert.Equal(t, "2", items[0].Fields["Data"])

	yamlDoc, err := cluster.Document(ctx, info, ns, "app-config", FormatYAML)
	require.NoError(t, err)
	assert.Contains(t, yamlDoc, "name: app-config")
	assert.NotContains(t, yamlDoc, "managedFields")

	describeDoc, err := cluster.Document(ctx, info, ns, "app-config", FormatDescribe)
	require.NoError(t, err)
	assert.Contains(t, describeDoc, "app-config")

	_, err = cluster.Document(ctx, info, ns, "missing", FormatDescribe)
	assert.Equal(t, NotFound, ClassOf(err))
}

func TestEnvtestMetricsAbsent(t *testing.T) {
	// envtest runs no metrics-server
	_, err := connectTestCluster(t).Metrics(context.Background(), "")
	assert.Equal(t, MetricsAbsent, ClassOf(err))
}

func TestEnvtestDiscoverKinds(t *testing.T) {
	kinds, err := connectTestCluster(t).DiscoverKinds(context.Background())
	require.NoError(t, err)
	for _, k := range kinds {
		assert.False(t, isBuiltinKindName(k.GVK.Kind), k.Kind)
	}
}
