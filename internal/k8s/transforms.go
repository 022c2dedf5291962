package k8s

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const none = "<none>"

// toItem converts an unstructured object into an Item using the kind's transform
func toItem(info KindInfo, u *unstructured.Unstructured) Item {
	fields := map[string]string{}
	if info.Transform != nil {
		fields = info.Transform(u)
	}
	return Item{
		Namespace: u.GetNamespace(),
		Name:      u.GetName(),
		CreatedAt: u.GetCreationTimestamp().Time,
		Fields:    fields,
		Object:    u,
	}
}

func nestedInt(obj map[string]any, fields ...string) int64 {
	v, found, err := unstructured.NestedFieldNoCopy(obj, fields...)
	if !found || err != nil {
		return 0
	}
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func nestedString(obj map[string]any, fields ...string) string {
	s, _, _ := unstructured.NestedString(obj, fields...)
	return s
}

func nestedSlice(obj map[string]any, fields ...string) []any {
	s, _, _ := unstructured.NestedSlice(obj, fields...)
	return s
}

func orNone(s string) string {
	if s == "" {
		return none
	}
	return s
}

func ratio(ready, desired int64) string {
	return fmt.Sprintf("%d/%d", ready, desired)
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

// transformPod converts an unstructured pod into its status fields
func transformPod(u *unstructured.Unstructured) map[string]string {
	statuses := nestedSlice(u.Object, "status", "containerStatuses")
	ready := int64(0)
	restarts := int64(0)
	reason := ""
	for _, cs := range statuses {
		csMap, ok := cs.(map[string]any)
		if !ok {
			continue
		}
		if r, _, _ := unstructured.NestedBool(csMap, "ready"); r {
			ready++
		}
		restarts += nestedInt(csMap, "restartCount")

		// a waiting or terminated container explains the pod better than its phase
		if w := nestedString(csMap, "state", "waiting", "reason"); w != "" && reason == "" {
			reason = w
		} else if t := nestedString(csMap, "state", "terminated", "reason"); t != "" && reason == "" {
			reason = t
		}
	}

	status := nestedString(u.Object, "status", "phase")
	if r := nestedString(u.Object, "status", "reason"); r != "" {
		status = r
	}
	if reason != "" {
		status = reason
	}
	if u.GetDeletionTimestamp() != nil {
		status = "Terminating"
	}
	if status == "" {
		status = "Unknown"
	}

	containers := []string{}
	for _, c := range nestedSlice(u.Object, "spec", "containers") {
		if cMap, ok := c.(map[string]any); ok {
			containers = append(containers, nestedString(cMap, "name"))
		}
	}

	return map[string]string{
		"Ready":      ratio(ready, int64(len(statuses))),
		"Status":     status,
		"Restarts":   itoa(restarts),
		"Node":       orNone(nestedString(u.Object, "spec", "nodeName")),
		"IP":         orNone(nestedString(u.Object, "status", "podIP")),
		"Containers": strings.Join(containers, ","),
	}
}

// transformNode converts an unstructured node into its status fields
func transformNode(u *unstructured.Unstructured) map[string]string {
	status := "Unknown"
	conditions := nestedSlice(u.Object, "status", "conditions")
	if len(conditions) > 0 {
		status = "Not Ready"
		for _, c := range conditions {
			cMap, ok := c.(map[string]any)
			if !ok {
				continue
			}
			if nestedString(cMap, "type") == "Ready" && nestedString(cMap, "status") == "True" {
				status = "Ready"
				break
			}
		}
	}
	if unschedulable, _, _ := unstructured.NestedBool(u.Object, "spec", "unschedulable"); unschedulable {
		status = "Unschedulable"
	}

	return map[string]string{
		"Status":  status,
		"Roles":   nodeRoles(u.GetLabels()),
		"Version": nestedString(u.Object, "status", "nodeInfo", "kubeletVersion"),
		"CPU":     nestedString(u.Object, "status", "allocatable", "cpu"),
		"Memory":  nestedString(u.Object, "status", "allocatable", "memory"),
	}
}

func nodeRoles(labels map[string]string) string {
	const prefix = "node-role.kubernetes.io/"
	roles := []string{}
	for k, v := range labels {
		switch {
		case strings.HasPrefix(k, prefix):
			if role := strings.TrimPrefix(k, prefix); role != "" {
				roles = append(roles, role)
			}
		case k == "kubernetes.io/role" && v != "":
			roles = append(roles, v)
		}
	}
	if len(roles) == 0 {
		return none
	}
	sort.Strings(roles)
	return strings.Join(roles, ",")
}

// transformNamespace converts an unstructured namespace into its status fields
func transformNamespace(u *unstructured.Unstructured) map[string]string {
	return map[string]string{
		"Status": nestedString(u.Object, "status", "phase"),
	}
}

// transformService converts an unstructured service into its status fields
func transformService(u *unstructured.Unstructured) map[string]string {
	clusterIP := orNone(nestedString(u.Object, "spec", "clusterIP"))

	externalIP := none
	lbIngress := nestedSlice(u.Object, "status", "loadBalancer", "ingress")
	if len(lbIngress) > 0 {
		if ingressMap, ok := lbIngress[0].(map[string]any); ok {
			if ip := nestedString(ingressMap, "ip"); ip != "" {
				externalIP = ip
			} else if hostname := nestedString(ingressMap, "hostname"); hostname != "" {
				externalIP = hostname
			}
		}
	}
	if externalIP == none {
		externalIPs, _, _ := unstructured.NestedStringSlice(u.Object, "spec", "externalIPs")
		if len(externalIPs) > 0 {
			externalIP = strings.Join(externalIPs, ",")
		}
	}

	ports := []string{}
	for _, p := range nestedSlice(u.Object, "spec", "ports") {
		portMap, ok := p.(map[string]any)
		if !ok {
			continue
		}
		port := itoa(nestedInt(portMap, "port"))
		if nodePort := nestedInt(portMap, "nodePort"); nodePort != 0 {
			port = fmt.Sprintf("%s:%d", port, nodePort)
		}
		ports = append(ports, port+"/"+nestedString(portMap, "protocol"))
	}

	return map[string]string{
		"Type":       nestedString(u.Object, "spec", "type"),
		"ClusterIP":  clusterIP,
		"ExternalIP": externalIP,
		"Ports":      orNone(strings.Join(ports, ",")),
	}
}

// transformDeployment converts an unstructured deployment into its status fields
func transformDeployment(u *unstructured.Unstructured) map[string]string {
	return map[string]string{
		"Ready":     ratio(nestedInt(u.Object, "status", "readyReplicas"), nestedInt(u.Object, "spec", "replicas")),
		"UpToDate":  itoa(nestedInt(u.Object, "status", "updatedReplicas")),
		"Available": itoa(nestedInt(u.Object, "status", "availableReplicas")),
	}
}

// transformConfigMap converts an unstructured configmap into its status fields
func transformConfigMap(u *unstructured.Unstructured) map[string]string {
	data, _, _ := unstructured.NestedMap(u.Object, "data")
	binary, _, _ := unstructured.NestedMap(u.Object, "binaryData")
	return map[string]string{
		"Data": strconv.Itoa(len(data) + len(binary)),
	}
}

// transformStatefulSet converts an unstructured statefulset into its status fields
func transformStatefulSet(u *unstructured.Unstructured) map[string]string {
	return map[string]string{
		"Ready":   ratio(nestedInt(u.Object, "status", "readyReplicas"), nestedInt(u.Object, "spec", "replicas")),
		"Service": orNone(nestedString(u.Object, "spec", "serviceName")),
	}
}

// transformReplicaSet converts an unstructured replicaset into its status fields
func transformReplicaSet(u *unstructured.Unstructured) map[string]string {
	return map[string]string{
		"Desired": itoa(nestedInt(u.Object, "spec", "replicas")),
		"Current": itoa(nestedInt(u.Object, "status", "replicas")),
		"Ready":   itoa(nestedInt(u.Object, "status", "readyReplicas")),
	}
}

// transformReplicationController shares the replicaset shape
func transformReplicationController(u *unstructured.Unstructured) map[string]string {
	return transformReplicaSet(u)
}

// transformDaemonSet converts an unstructured daemonset into its status fields
func transformDaemonSet(u *unstructured.Unstructured) map[string]string {
	return map[string]string{
		"Desired":   itoa(nestedInt(u.Object, "status", "desiredNumberScheduled")),
		"Current":   itoa(nestedInt(u.Object, "status", "currentNumberScheduled")),
		"Ready":     itoa(nestedInt(u.Object, "status", "numberReady")),
		"UpToDate":  itoa(nestedInt(u.Object, "status", "updatedNumberScheduled")),
		"Available": itoa(nestedInt(u.Object, "status", "numberAvailable")),
	}
}

// transformJob converts an unstructured job into its status fields
func transformJob(u *unstructured.Unstructured) map[string]string {
	completions, found, _ := unstructured.NestedInt64(u.Object, "spec", "completions")
	if !found {
		completions = 1
	}
	succeeded := nestedInt(u.Object, "status", "succeeded")

	duration := ""
	start := parseTime(nestedString(u.Object, "status", "startTime"))
	if !start.IsZero() {
		end := parseTime(nestedString(u.Object, "status", "completionTime"))
		if end.IsZero() {
			end = time.Now()
		}
		duration = FormatAge(end.Sub(start))
	}

	return map[string]string{
		"Completions": ratio(succeeded, completions),
		"Duration":    duration,
	}
}

// transformCronJob converts an unstructured cronjob into its status fields
func transformCronJob(u *unstructured.Unstructured) map[string]string {
	suspend, _, _ := unstructured.NestedBool(u.Object, "spec", "suspend")

	lastSchedule := none
	if last := parseTime(nestedString(u.Object, "status", "lastScheduleTime")); !last.IsZero() {
		lastSchedule = FormatAge(time.Since(last))
	}

	return map[string]string{
		"Schedule":     nestedString(u.Object, "spec", "schedule"),
		"Suspend":      strconv.FormatBool(suspend),
		"Active":       strconv.Itoa(len(nestedSlice(u.Object, "status", "active"))),
		"LastSchedule": lastSchedule,
	}
}

// transformSecret converts an unstructured secret into its status fields
func transformSecret(u *unstructured.Unstructured) map[string]string {
	data, _, _ := unstructured.NestedMap(u.Object, "data")
	return map[string]string{
		"Type": nestedString(u.Object, "type"),
		"Data": strconv.Itoa(len(data)),
	}
}

// transformRole serves both roles and cluster roles
func transformRole(u *unstructured.Unstructured) map[string]string {
	return map[string]string{
		"Rules": strconv.Itoa(len(nestedSlice(u.Object, "rules"))),
	}
}

// transformRoleBinding serves both role bindings and cluster role bindings
func transformRoleBinding(u *unstructured.Unstructured) map[string]string {
	subjects := []string{}
	for _, s := range nestedSlice(u.Object, "subjects") {
		if sMap, ok := s.(map[string]any); ok {
			subjects = append(subjects, nestedString(sMap, "kind")+"/"+nestedString(sMap, "name"))
		}
	}
	return map[string]string{
		"Role":     nestedString(u.Object, "roleRef", "kind") + "/" + nestedString(u.Object, "roleRef", "name"),
		"Subjects": orNone(strings.Join(subjects, ",")),
	}
}

// transformStorageClass converts an unstructured storage class into its status fields
func transformStorageClass(u *unstructured.Unstructured) map[string]string {
	reclaim := nestedString(u.Object, "reclaimPolicy")
	if reclaim == "" {
		reclaim = "Delete"
	}
	binding := nestedString(u.Object, "volumeBindingMode")
	if binding == "" {
		binding = "Immediate"
	}
	expansion, _, _ := unstructured.NestedBool(u.Object, "allowVolumeExpansion")
	return map[string]string{
		"Provisioner":          nestedString(u.Object, "provisioner"),
		"ReclaimPolicy":        reclaim,
		"VolumeBindingMode":    binding,
		"AllowVolumeExpansion": strconv.FormatBool(expansion),
	}
}

// transformIngress converts an unstructured ingress into its status fields
func transformIngress(u *unstructured.Unstructured) map[string]string {
	class := nestedString(u.Object, "spec", "ingressClassName")
	if class == "" {
		class = u.GetAnnotations()["kubernetes.io/ingress.class"]
	}

	hosts := []string{}
	for _, r := range nestedSlice(u.Object, "spec", "rules") {
		if rMap, ok := r.(map[string]any); ok {
			if h := nestedString(rMap, "host"); h != "" {
				hosts = append(hosts, h)
			}
		}
	}
	if len(hosts) == 0 {
		hosts = append(hosts, "*")
	}

	addresses := []string{}
	for _, i := range nestedSlice(u.Object, "status", "loadBalancer", "ingress") {
		if iMap, ok := i.(map[string]any); ok {
			if ip := nestedString(iMap, "ip"); ip != "" {
				addresses = append(addresses, ip)
			} else if h := nestedString(iMap, "hostname"); h != "" {
				addresses = append(addresses, h)
			}
		}
	}

	ports := "80"
	if len(nestedSlice(u.Object, "spec", "tls")) > 0 {
		ports = "80, 443"
	}

	return map[string]string{
		"Class":   orNone(class),
		"Hosts":   strings.Join(hosts, ","),
		"Address": strings.Join(addresses, ","),
		"Ports":   ports,
	}
}

// transformNetworkPolicy converts an unstructured network policy into its status fields
func transformNetworkPolicy(u *unstructured.Unstructured) map[string]string {
	selector, _, _ := unstructured.NestedStringMap(u.Object, "spec", "podSelector", "matchLabels")
	pairs := make([]string, 0, len(selector))
	for k, v := range selector {
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)

	podSelector := strings.Join(pairs, ",")
	if podSelector == "" {
		podSelector = "<all>"
	}
	types, _, _ := unstructured.NestedStringSlice(u.Object, "spec", "policyTypes")

	return map[string]string{
		"PodSelector": podSelector,
		"PolicyTypes": strings.Join(types, ","),
	}
}

// transformPersistentVolume converts an unstructured PV into its status fields
func transformPersistentVolume(u *unstructured.Unstructured) map[string]string {
	claim := ""
	if name := nestedString(u.Object, "spec", "claimRef", "name"); name != "" {
		claim = nestedString(u.Object, "spec", "claimRef", "namespace") + "/" + name
	}
	return map[string]string{
		"Capacity":      nestedString(u.Object, "spec", "capacity", "storage"),
		"AccessModes":   accessModes(u, "spec", "accessModes"),
		"ReclaimPolicy": nestedString(u.Object, "spec", "persistentVolumeReclaimPolicy"),
		"Status":        nestedString(u.Object, "status", "phase"),
		"Claim":         claim,
		"StorageClass":  nestedString(u.Object, "spec", "storageClassName"),
	}
}

// transformPersistentVolumeClaim converts an unstructured PVC into its status fields
func transformPersistentVolumeClaim(u *unstructured.Unstructured) map[string]string {
	return map[string]string{
		"Status":       nestedString(u.Object, "status", "phase"),
		"Volume":       nestedString(u.Object, "spec", "volumeName"),
		"Capacity":     nestedString(u.Object, "status", "capacity", "storage"),
		"AccessModes":  accessModes(u, "status", "accessModes"),
		"StorageClass": nestedString(u.Object, "spec", "storageClassName"),
	}
}

func accessModes(u *unstructured.Unstructured, fields ...string) string {
	modes, _, _ := unstructured.NestedStringSlice(u.Object, fields...)
	short := make([]string, 0, len(modes))
	for _, m := range modes {
		switch m {
		case "ReadWriteOnce":
			short = append(short, "RWO")
		case "ReadOnlyMany":
			short = append(short, "ROX")
		case "ReadWriteMany":
			short = append(short, "RWX")
		case "ReadWriteOncePod":
			short = append(short, "RWOP")
		default:
			short = append(short, m)
		}
	}
	return strings.Join(short, ",")
}

// transformServiceAccount converts an unstructured service account into its status fields
func transformServiceAccount(u *unstructured.Unstructured) map[string]string {
	return map[string]string{
		"Secrets": strconv.Itoa(len(nestedSlice(u.Object, "secrets"))),
	}
}

// transformGeneric is used for custom kinds whose schema is unknown
func transformGeneric(u *unstructured.Unstructured) map[string]string {
	return map[string]string{}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
