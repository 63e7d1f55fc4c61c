package kube

import (
	"context"
	"os"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/klog/v2"
)

// NamespaceFilter drops discovered namespaces that no longer exist in the
// cluster. Monitoring data lags the cluster, so a namespace deleted since
// the discovery window would otherwise be queried metric by metric for
// nothing.
type NamespaceFilter struct {
	client kubernetes.Interface
}

// NewNamespaceFilter wraps an existing clientset.
func NewNamespaceFilter(client kubernetes.Interface) *NamespaceFilter {
	return &NamespaceFilter{client: client}
}

// NewNamespaceFilterFromEnv builds a clientset from the in-cluster config,
// falling back to $KUBECONFIG.
func NewNamespaceFilterFromEnv() (*NamespaceFilter, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		kubeconfig := os.Getenv("KUBECONFIG")
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, err
		}
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &NamespaceFilter{client: client}, nil
}

// Filter intersects the discovered set with the namespaces currently present
// in the cluster. If the API server cannot be reached the set is returned
// unfiltered; the filter is an optimization, never a gate.
func (f *NamespaceFilter) Filter(ctx context.Context, discovered sets.Set[string]) sets.Set[string] {
	list, err := f.client.CoreV1().Namespaces().List(ctx, metav1.ListOptions{})
	if err != nil {
		klog.ErrorS(err, "Failed to list cluster namespaces, keeping discovered set unfiltered")
		return discovered
	}

	current := sets.New[string]()
	for _, ns := range list.Items {
		current.Insert(ns.Name)
	}

	filtered := discovered.Intersection(current)
	if dropped := discovered.Len() - filtered.Len(); dropped > 0 {
		klog.InfoS("Dropped namespaces no longer present in cluster",
			"dropped", dropped, "remaining", filtered.Len())
	}
	return filtered
}
