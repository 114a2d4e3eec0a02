package data

// DataContext provides fetched metadata for one subject.
type DataContext interface {
	Get(key DependencyKey) (any, bool)
}

// MapDataContext is a simple read-only map-based implementation of DataContext.
type MapDataContext struct {
	data map[DependencyKey]any
}

func NewMapDataContext(data map[DependencyKey]any) *MapDataContext {
	// A nil map is treated as an empty context.
	return &MapDataContext{data: data}
}

func (c *MapDataContext) Get(key DependencyKey) (any, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.data[key]
	return val, ok
}

// Number reads key as a float64, accepting any integer or float type.
func Number(c DataContext, key DependencyKey) (float64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.Get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
