package k8s

import (
	"sort"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

// ResourceKind identifies a category of cluster object. Built-in kinds use the
// plural resource name; custom kinds use "<plural>.<group>".
type ResourceKind string

const (
	KindPod                   ResourceKind = "pods"
	KindNode                  ResourceKind = "nodes"
	KindNamespace             ResourceKind = "namespaces"
	KindService               ResourceKind = "services"
	KindDeployment            ResourceKind = "deployments"
	KindConfigMap             ResourceKind = "configmaps"
	KindStatefulSet           ResourceKind = "statefulsets"
	KindReplicaSet            ResourceKind = "replicasets"
	KindDaemonSet             ResourceKind = "daemonsets"
	KindJob                   ResourceKind = "jobs"
	KindCronJob               ResourceKind = "cronjobs"
	KindSecret                ResourceKind = "secrets"
	KindRole                  ResourceKind = "roles"
	KindRoleBinding           ResourceKind = "rolebindings"
	KindClusterRole           ResourceKind = "clusterroles"
	KindClusterRoleBinding    ResourceKind = "clusterrolebindings"
	KindStorageClass          ResourceKind = "storageclasses"
	KindIngress               ResourceKind = "ingresses"
	KindNetworkPolicy         ResourceKind = "networkpolicies"
	KindPersistentVolume      ResourceKind = "persistentvolumes"
	KindPersistentVolumeClaim ResourceKind = "persistentvolumeclaims"
	KindServiceAccount        ResourceKind = "serviceaccounts"
	KindReplicationController ResourceKind = "replicationcontrollers"
)

// TransformFunc extracts the kind-specific status fields of one object
type TransformFunc func(*unstructured.Unstructured) map[string]string

// KindInfo is the per-kind adapter record: where to fetch it, how it is scoped,
// which document shape it has and how its status fields are extracted.
type KindInfo struct {
	Kind       ResourceKind
	GVR        schema.GroupVersionResource
	GVK        schema.GroupVersionKind // document shape for describe/YAML
	Title      string
	Namespaced bool
	Columns    []string // ordered keys of Item.Fields
	Transform  TransformFunc
	Custom     bool
}

// Item is one instance of a kind
type Item struct {
	Namespace string // "" for cluster-scoped resources
	Name      string
	CreatedAt time.Time
	Fields    map[string]string
	Object    *unstructured.Unstructured
}

// Key returns the identity of the item within its kind
func (i Item) Key() string {
	if i.Namespace == "" {
		return i.Name
	}
	return i.Namespace + "/" + i.Name
}

// Age returns how long ago the item was created
func (i Item) Age(now time.Time) time.Duration {
	if i.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(i.CreatedAt)
}

func builtin(kind ResourceKind, group, version, gvKind, title string, namespaced bool, transform TransformFunc, columns ...string) KindInfo {
	return KindInfo{
		Kind:       kind,
		GVR:        schema.GroupVersionResource{Group: group, Version: version, Resource: string(kind)},
		GVK:        schema.GroupVersionKind{Group: group, Version: version, Kind: gvKind},
		Title:      title,
		Namespaced: namespaced,
		Columns:    columns,
		Transform:  transform,
	}
}

// builtinKinds returns the closed set of kinds every cluster is expected to serve
func builtinKinds() []KindInfo {
	return []KindInfo{
		builtin(KindPod, "", "v1", "Pod", "Pods", true, transformPod,
			"Ready", "Status", "Restarts", "Node", "IP", "Containers"),
		builtin(KindNode, "", "v1", "Node", "Nodes", false, transformNode,
			"Status", "Roles", "Version", "CPU", "Memory"),
		builtin(KindNamespace, "", "v1", "Namespace", "Namespaces", false, transformNamespace,
			"Status"),
		builtin(KindService, "", "v1", "Service", "Services", true, transformService,
			"Type", "ClusterIP", "ExternalIP", "Ports"),
		builtin(KindDeployment, "apps", "v1", "Deployment", "Deployments", true, transformDeployment,
			"Ready", "UpToDate", "Available"),
		builtin(KindConfigMap, "", "v1", "ConfigMap", "ConfigMaps", true, transformConfigMap,
			"Data"),
		builtin(KindStatefulSet, "apps", "v1", "StatefulSet", "StatefulSets", true, transformStatefulSet,
			"Ready", "Service"),
		builtin(KindReplicaSet, "apps", "v1", "ReplicaSet", "ReplicaSets", true, transformReplicaSet,
			"Desired", "Current", "Ready"),
		builtin(KindDaemonSet, "apps", "v1", "DaemonSet", "DaemonSets", true, transformDaemonSet,
			"Desired", "Current", "Ready", "UpToDate", "Available"),
		builtin(KindJob, "batch", "v1", "Job", "Jobs", true, transformJob,
			"Completions", "Duration"),
		builtin(KindCronJob, "batch", "v1", "CronJob", "CronJobs", true, transformCronJob,
			"Schedule", "Suspend", "Active", "LastSchedule"),
		builtin(KindSecret, "", "v1", "Secret", "Secrets", true, transformSecret,
			"Type", "Data"),
		builtin(KindRole, "rbac.authorization.k8s.io", "v1", "Role", "Roles", true, transformRole,
			"Rules"),
		builtin(KindRoleBinding, "rbac.authorization.k8s.io", "v1", "RoleBinding", "RoleBindings", true, transformRoleBinding,
			"Role", "Subjects"),
		builtin(KindClusterRole, "rbac.authorization.k8s.io", "v1", "ClusterRole", "ClusterRoles", false, transformRole,
			"Rules"),
		builtin(KindClusterRoleBinding, "rbac.authorization.k8s.io", "v1", "ClusterRoleBinding", "ClusterRoleBindings", false, transformRoleBinding,
			"Role", "Subjects"),
		builtin(KindStorageClass, "storage.k8s.io", "v1", "StorageClass", "StorageClasses", false, transformStorageClass,
			"Provisioner", "ReclaimPolicy", "VolumeBindingMode", "AllowVolumeExpansion"),
		builtin(KindIngress, "networking.k8s.io", "v1", "Ingress", "Ingresses", true, transformIngress,
			"Class", "Hosts", "Address", "Ports"),
		builtin(KindNetworkPolicy, "networking.k8s.io", "v1", "NetworkPolicy", "NetworkPolicies", true, transformNetworkPolicy,
			"PodSelector", "PolicyTypes"),
		builtin(KindPersistentVolume, "", "v1", "PersistentVolume", "PersistentVolumes", false, transformPersistentVolume,
			"Capacity", "AccessModes", "ReclaimPolicy", "Status", "Claim", "StorageClass"),
		builtin(KindPersistentVolumeClaim, "", "v1", "PersistentVolumeClaim", "PersistentVolumeClaims", true, transformPersistentVolumeClaim,
			"Status", "Volume", "Capacity", "AccessModes", "StorageClass"),
		builtin(KindServiceAccount, "", "v1", "ServiceAccount", "ServiceAccounts", true, transformServiceAccount,
			"Secrets"),
		builtin(KindReplicationController, "", "v1", "ReplicationController", "ReplicationControllers", true, transformReplicationController,
			"Desired", "Current", "Ready"),
	}
}

// CustomKind builds the adapter record for a kind discovered at runtime
func CustomKind(gvr schema.GroupVersionResource, kind string, namespaced bool) KindInfo {
	name := gvr.Resource
	if gvr.Group != "" {
		name += "." + gvr.Group
	}
	return KindInfo{
		Kind:       ResourceKind(name),
		GVR:        gvr,
		GVK:        gvr.GroupVersion().WithKind(kind),
		Title:      kind,
		Namespaced: namespaced,
		Transform:  transformGeneric,
		Custom:     true,
	}
}

// Registry holds the built-in kinds plus the custom kinds discovered for one
// cluster connection.
type Registry struct {
	mu      sync.RWMutex
	builtin []KindInfo
	byKind  map[ResourceKind]KindInfo
	custom  map[ResourceKind]KindInfo
}

// NewRegistry creates a registry containing only the built-in kinds
func NewRegistry() *Registry {
	kinds := builtinKinds()
	byKind := make(map[ResourceKind]KindInfo, len(kinds))
	for _, k := range kinds {
		byKind[k.Kind] = k
	}
	return &Registry{
		builtin: kinds,
		byKind:  byKind,
		custom:  make(map[ResourceKind]KindInfo),
	}
}

// Lookup returns the adapter record for a kind
func (r *Registry) Lookup(kind ResourceKind) (KindInfo, bool) {
	if info, ok := r.byKind[kind]; ok {
		return info, true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.custom[kind]
	return info, ok
}

// Builtin returns the built-in kinds in their canonical order
func (r *Registry) Builtin() []KindInfo {
	out := make([]KindInfo, len(r.builtin))
	copy(out, r.builtin)
	return out
}

// Custom returns the registered custom kinds sorted by kind name
func (r *Registry) Custom() []KindInfo {
	r.mu.RLock()
	out := make([]KindInfo, 0, len(r.custom))
	for _, info := range r.custom {
		out = append(out, info)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// All returns built-in kinds followed by custom kinds
func (r *Registry) All() []KindInfo {
	return append(r.Builtin(), r.Custom()...)
}

// RegisterCustom adds a discovered kind. Kinds colliding with a built-in are
// refused.
func (r *Registry) RegisterCustom(info KindInfo) bool {
	if _, ok := r.byKind[info.Kind]; ok {
		return false
	}
	info.Custom = true
	if info.Transform == nil {
		info.Transform = transformGeneric
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom[info.Kind] = info
	return true
}

// isBuiltinKindName reports whether a discovered kind name is already covered
// by a built-in kind, whatever group serves it
func isBuiltinKindName(name string) bool {
	for _, k := range builtinKinds() {
		if k.GVK.Kind == name {
			return true
		}
	}
	return false
}
