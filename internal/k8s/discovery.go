package k8s

import (
	"context"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/discovery"
)

// DiscoverKinds returns the listable kinds the cluster serves beyond the
// built-in set. Partial discovery failures still return what was found.
// Discovery requests take no context; they are bounded by the client's
// request timeout, and ctx is only checked before they start.
func (c *Client) DiscoverKinds(ctx context.Context) ([]KindInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{Class: Connectivity, Err: err}
	}
	lists, err := c.discovery.ServerPreferredResources()
	if err != nil && !discovery.IsGroupDiscoveryFailedError(err) {
		return nil, classifyList("", err)
	}

	var kinds []KindInfo
	for _, list := range lists {
		if list == nil {
			continue
		}
		gv, perr := schema.ParseGroupVersion(list.GroupVersion)
		if perr != nil {
			continue
		}
		for _, res := range list.APIResources {
			// Skip subresources and kinds we already render
			if res.Name == "" || strings.Contains(res.Name, "/") {
				continue
			}
			if !slices.Contains(res.Verbs, "list") || isBuiltinKindName(res.Kind) {
				continue
			}
			kinds = append(kinds, CustomKind(gv.WithResource(res.Name), res.Kind, res.Namespaced))
		}
	}
	return kinds, err
}
