package k8s

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// PodRequests sums the CPU (millicores) and memory (bytes) requests of a pod's
// containers
func PodRequests(item Item) (milliCPU, memoryBytes int64) {
	if item.Object == nil {
		return 0, 0
	}
	for _, c := range nestedSlice(item.Object.Object, "spec", "containers") {
		cMap, ok := c.(map[string]any)
		if !ok {
			continue
		}
		milliCPU += MilliCPU(nestedString(cMap, "resources", "requests", "cpu"))
		memoryBytes += Bytes(nestedString(cMap, "resources", "requests", "memory"))
	}
	return milliCPU, memoryBytes
}

// PodNode returns the node a pod is scheduled on
func PodNode(item Item) string {
	if item.Object == nil {
		return ""
	}
	return nestedString(item.Object.Object, "spec", "nodeName")
}

// PodTerminal reports whether a pod has finished and no longer holds its
// requests
func PodTerminal(item Item) bool {
	if item.Object == nil {
		return false
	}
	phase := nestedString(item.Object.Object, "status", "phase")
	return phase == "Succeeded" || phase == "Failed"
}

// NodeAllocatable returns the allocatable CPU (millicores) and memory (bytes)
// of a node
func NodeAllocatable(item Item) (milliCPU, memoryBytes int64) {
	if item.Object == nil {
		return 0, 0
	}
	alloc, _, _ := unstructured.NestedStringMap(item.Object.Object, "status", "allocatable")
	return MilliCPU(alloc["cpu"]), Bytes(alloc["memory"])
}
