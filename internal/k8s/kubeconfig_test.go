package k8s

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// writeKubeconfig writes a kubeconfig with one context per name to a temp dir
func writeKubeconfig(t *testing.T, current string, names ...string) string {
	t.Helper()

	config := clientcmdapi.NewConfig()
	config.Clusters["cluster1"] = &clientcmdapi.Cluster{Server: "https://cluster1.example.com"}
	config.AuthInfos["user1"] = &clientcmdapi.AuthInfo{Token: "token1"}
	for _, name := range names {
		config.Contexts[name] = &clientcmdapi.Context{
			Cluster:   "cluster1",
			AuthInfo:  "user1",
			Namespace: "ns-" + name,
		}
	}
	config.CurrentContext = current

	path := filepath.Join(t.TempDir(), "kubeconfig")
	require.NoError(t, clientcmd.WriteToFile(*config, path))
	return path
}

func TestLoadKubeconfig(t *testing.T) {
	path := writeKubeconfig(t, "ctx-beta", "ctx-gamma", "ctx-alpha", "ctx-beta")

	kc, err := LoadKubeconfig(path)
	require.NoError(t, err)

	require.Len(t, kc.Contexts, 3)
	assert.Equal(t, "ctx-alpha", kc.Contexts[0].Name)
	assert.Equal(t, "ctx-beta", kc.Contexts[1].Name)
	assert.Equal(t, "ctx-gamma", kc.Contexts[2].Name)
	assert.Equal(t, "ctx-beta", kc.CurrentContext)

	first := kc.Contexts[0]
	assert.Equal(t, "cluster1", first.Cluster)
	assert.Equal(t, "user1", first.User)
	assert.Equal(t, "ns-ctx-alpha", first.Namespace)
	assert.Equal(t, "https://cluster1.example.com", first.Server)
}

func TestLoadKubeconfigMissingFile(t *testing.T) {
	_, err := LoadKubeconfig(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestResolveContext(t *testing.T) {
	kc := &Kubeconfig{
		Contexts: []ContextInfo{
			{Name: "dev"},
			{Name: "prod-a"},
			{Name: "prod-b"},
			{Name: "staging-us"},
		},
		CurrentContext: "dev",
	}

	tests := []struct {
		name    string
		id      string
		want    string
		wantErr error
	}{
		{name: "exact match", id: "prod-a", want: "prod-a"},
		{name: "empty id uses current", id: "", want: "dev"},
		{name: "single fuzzy match", id: "stag", want: "staging-us"},
		{name: "no match", id: "zzz", wantErr: ErrNoContextMatch},
		{name: "ambiguous fuzzy match", id: "prod", wantErr: ErrAmbiguousContext},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := kc.ResolveContext(tt.id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWatchKubeconfig(t *testing.T) {
	path := writeKubeconfig(t, "one", "one")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- WatchKubeconfig(ctx, path, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)

	config := clientcmdapi.NewConfig()
	config.Contexts["two"] = &clientcmdapi.Context{Cluster: "c"}
	require.NoError(t, clientcmd.WriteToFile(*config, path))

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("kubeconfig change was not reported")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
