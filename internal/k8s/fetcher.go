package k8s

import (
	"context"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"
)

// List returns the full collection of a kind, or a classified failure. An
// empty namespace lists across all namespaces. Items keep API order.
func (c *Client) List(ctx context.Context, info KindInfo, namespace string) ([]Item, error) {
	var ri dynamic.ResourceInterface = c.dynamic.Resource(info.GVR)
	if info.Namespaced && namespace != "" {
		ri = c.dynamic.Resource(info.GVR).Namespace(namespace)
	}

	list, err := ri.List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classifyList(info.Kind, err)
	}

	items := make([]Item, 0, len(list.Items))
	for i := range list.Items {
		items = append(items, toItem(info, &list.Items[i]))
	}
	return items, nil
}

// get fetches a single object of a kind
func (c *Client) get(ctx context.Context, info KindInfo, namespace, name string) (*unstructured.Unstructured, error) {
	var ri dynamic.ResourceInterface = c.dynamic.Resource(info.GVR)
	if info.Namespaced {
		ri = c.dynamic.Resource(info.GVR).Namespace(namespace)
	}
	obj, err := ri.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classifyGet(info.Kind, err)
	}
	return obj, nil
}
