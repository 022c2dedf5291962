package k8s

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/cli-runtime/pkg/printers"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/kubectl/pkg/describe"
	"sigs.k8s.io/yaml"
)

// DocumentFormat selects how a single object is rendered
type DocumentFormat string

const (
	FormatDescribe DocumentFormat = "describe"
	FormatYAML     DocumentFormat = "yaml"
)

// Document fetches one object and renders it. The object is always fetched
// first so a missing resource is reported as NotFound whatever the format.
func (c *Client) Document(ctx context.Context, info KindInfo, namespace, name string, format DocumentFormat) (string, error) {
	obj, err := c.get(ctx, info, namespace, name)
	if err != nil {
		return "", err
	}

	switch format {
	case FormatYAML:
		return renderYAML(obj)
	case FormatDescribe:
		return c.describe(ctx, info, obj)
	default:
		return "", NewFetchError(Transient, info.Kind, fmt.Errorf("unknown document format %q", format))
	}
}

// renderYAML uses the kubectl YAML printer with managed fields stripped
func renderYAML(obj *unstructured.Unstructured) (string, error) {
	obj = obj.DeepCopy()
	obj.SetManagedFields(nil)

	printer := printers.NewTypeSetter(scheme.Scheme).ToPrinter(&printers.YAMLPrinter{})

	var buf bytes.Buffer
	if err := printer.PrintObj(obj, &buf); err != nil {
		return "", fmt.Errorf("failed to print YAML: %w", err)
	}
	return buf.String(), nil
}

// describe prefers the kubectl describer for the kind and falls back to a
// generic rendering when none exists or it fails
func (c *Client) describe(ctx context.Context, info KindInfo, obj *unstructured.Unstructured) (string, error) {
	if c.restConfig != nil {
		if d, ok := describe.DescriberFor(info.GVK.GroupKind(), c.restConfig); ok {
			out, err := d.Describe(obj.GetNamespace(), obj.GetName(), describe.DescriberSettings{
				ShowEvents: true,
				ChunkSize:  500,
			})
			if err == nil {
				return out, nil
			}
		}
	}
	return c.describeGeneric(ctx, obj), nil
}

func (c *Client) describeGeneric(ctx context.Context, obj *unstructured.Unstructured) string {
	namespace := obj.GetNamespace()

	var buf bytes.Buffer
	buf.WriteString(fmt.Sprintf("Name:         %s\n", obj.GetName()))
	if namespace != "" {
		buf.WriteString(fmt.Sprintf("Namespace:    %s\n", namespace))
	}
	buf.WriteString(fmt.Sprintf("Kind:         %s\n", obj.GetKind()))
	buf.WriteString(fmt.Sprintf("API Version:  %s\n", obj.GetAPIVersion()))

	labels := obj.GetLabels()
	if len(labels) > 0 {
		keys := make([]string, 0, len(labels))
		for k := range labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteString("Labels:       ")
		for i, k := range keys {
			if i > 0 {
				buf.WriteString("              ")
			}
			buf.WriteString(fmt.Sprintf("%s=%s\n", k, labels[k]))
		}
	}

	buf.WriteString(fmt.Sprintf("Created:      %s\n", obj.GetCreationTimestamp().String()))

	for _, section := range []string{"spec", "status"} {
		value, found, err := unstructured.NestedFieldCopy(obj.Object, section)
		if !found || err != nil {
			continue
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			continue
		}
		buf.WriteString("\n" + strings.ToUpper(section[:1]) + section[1:] + ":\n")
		for _, line := range strings.Split(string(out), "\n") {
			if line != "" {
				buf.WriteString("  " + line + "\n")
			}
		}
	}

	buf.WriteString("\nEvents:\n")
	if c.kube == nil {
		buf.WriteString("  <none>\n")
		return buf.String()
	}
	events, err := c.eventsFor(ctx, namespace, obj.GetName(), string(obj.GetUID()))
	if err != nil {
		buf.WriteString(fmt.Sprintf("  Failed to fetch events: %v\n", err))
	} else {
		buf.WriteString(formatEvents(events, time.Now()))
	}
	return buf.String()
}

// eventsFor fetches events related to a specific object on-demand
func (c *Client) eventsFor(ctx context.Context, namespace, name, uid string) ([]corev1.Event, error) {
	fieldSelector := fmt.Sprintf("involvedObject.name=%s", name)
	if namespace != "" {
		fieldSelector += fmt.Sprintf(",involvedObject.namespace=%s", namespace)
	}
	if uid != "" {
		fieldSelector += fmt.Sprintf(",involvedObject.uid=%s", uid)
	}

	eventList, err := c.kube.CoreV1().Events(namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fieldSelector,
		Limit:         100,
	})
	if err != nil {
		return nil, err
	}
	return eventList.Items, nil
}

// formatEvents formats events in kubectl describe style, newest first
func formatEvents(events []corev1.Event, now time.Time) string {
	if len(events) == 0 {
		return "  <none>\n"
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].LastTimestamp.After(events[j].LastTimestamp.Time)
	})

	var buf bytes.Buffer
	buf.WriteString("  Type    Reason    Age                    Message\n")
	buf.WriteString("  ----    ------    ---                    -------\n")

	for _, event := range events {
		message := event.Message

		var age string
		switch {
		case !event.LastTimestamp.IsZero():
			age = FormatAge(now.Sub(event.LastTimestamp.Time))
		case !event.EventTime.IsZero():
			age = FormatAge(now.Sub(event.EventTime.Time))
		default:
			age = "<unknown>"
		}

		if len(message) > 80 {
			message = message[:77] + "..."
		}

		buf.WriteString(fmt.Sprintf("  %-7s %-9s %-22s %s\n", event.Type, event.Reason, age, message))
	}
	return buf.String()
}
