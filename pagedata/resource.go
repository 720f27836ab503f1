// Package pagedata caches the profile and managed Pages of every session. The store is the
// canonical copy; memory only tracks fetches in flight and their failures.
package pagedata

// FetchStatus of one resource.
type FetchStatus string

const (
	Idle    FetchStatus = "idle"
	Loading FetchStatus = "loading"
	Loaded  FetchStatus = "loaded"
	Failed  FetchStatus = "failed"
)

// Resource is the fetch state of one piece of session data. Data is set only when Loaded,
// Reason only when Failed.
type Resource[T any] struct {
	Status FetchStatus `json:"status"`
	Data   *T          `json:"data,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

func idle[T any]() Resource[T] {
	return Resource[T]{Status: Idle}
}

func loading[T any]() Resource[T] {
	return Resource[T]{Status: Loading}
}

func loaded[T any](data T) Resource[T] {
	return Resource[T]{Status: Loaded, Data: &data}
}

func failed[T any](reason string) Resource[T] {
	return Resource[T]{Status: Failed, Reason: reason}
}

// Ready reports whether the fetch finished, successfully or not.
func (r Resource[T]) Ready() bool {
	return r.Status == Loaded || r.Status == Failed
}
