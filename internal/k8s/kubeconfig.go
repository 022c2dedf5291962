package k8s

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sahilm/fuzzy"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/renato0307/kscope/internal/logging"
)

const kubeconfigDebounce = 300 * time.Millisecond

// ContextInfo holds context metadata from kubeconfig
type ContextInfo struct {
	Name      string
	Cluster   string
	User      string
	Namespace string
	Server    string
}

// Kubeconfig is the parsed context list of a kubeconfig file
type Kubeconfig struct {
	Contexts       []ContextInfo
	CurrentContext string
}

// LoadKubeconfig loads a kubeconfig and extracts all contexts sorted by name
func LoadKubeconfig(path string) (*Kubeconfig, error) {
	config, err := clientcmd.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig: %w", err)
	}

	contexts := make([]ContextInfo, 0, len(config.Contexts))
	for name, ctx := range config.Contexts {
		info := ContextInfo{
			Name:      name,
			Cluster:   ctx.Cluster,
			User:      ctx.AuthInfo,
			Namespace: ctx.Namespace,
		}
		if cluster, ok := config.Clusters[ctx.Cluster]; ok {
			info.Server = cluster.Server
		}
		contexts = append(contexts, info)
	}

	// map iteration order is random
	sort.Slice(contexts, func(i, j int) bool {
		return contexts[i].Name < contexts[j].Name
	})

	return &Kubeconfig{Contexts: contexts, CurrentContext: config.CurrentContext}, nil
}

// Lookup returns the context with the exact name
func (k *Kubeconfig) Lookup(name string) (ContextInfo, bool) {
	for _, c := range k.Contexts {
		if c.Name == name {
			return c, true
		}
	}
	return ContextInfo{}, false
}

var (
	// ErrNoContextMatch is returned when no context resembles the id
	ErrNoContextMatch = errors.New("no matching context")
	// ErrAmbiguousContext is returned when several contexts match equally well
	ErrAmbiguousContext = errors.New("ambiguous context")
)

// ResolveContext maps a user supplied id to a context name. Exact names win;
// otherwise the single best fuzzy match is used.
func (k *Kubeconfig) ResolveContext(id string) (string, error) {
	if id == "" {
		if k.CurrentContext == "" {
			return "", fmt.Errorf("%w: no current context", ErrNoContextMatch)
		}
		return k.CurrentContext, nil
	}
	if _, ok := k.Lookup(id); ok {
		return id, nil
	}

	names := make([]string, len(k.Contexts))
	for i, c := range k.Contexts {
		names[i] = c.Name
	}
	matches := fuzzy.Find(id, names)
	switch {
	case len(matches) == 0:
		return "", fmt.Errorf("%w: %q", ErrNoContextMatch, id)
	case len(matches) > 1 && matches[0].Score == matches[1].Score:
		return "", fmt.Errorf("%w: %q matches %s and %s", ErrAmbiguousContext, id, matches[0].Str, matches[1].Str)
	default:
		return matches[0].Str, nil
	}
}

// WatchKubeconfig calls onChange after the kubeconfig file is written, created
// or replaced. Bursts of events are debounced. It blocks until ctx is done.
func WatchKubeconfig(ctx context.Context, path string, onChange func()) error {
	log := logging.Component("kubeconfig")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory too, editors save by rename
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch kubeconfig directory: %w", err)
	}
	if err := watcher.Add(path); err != nil && !os.IsNotExist(err) {
		log.Warn("could not watch kubeconfig file", "path", path, "error", err)
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			// re-add the watch on the new inode after an atomic replace
			_ = watcher.Remove(path)
			_ = watcher.Add(path)

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(kubeconfigDebounce, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("kubeconfig watcher error", "error", err)
		}
	}
}
