package fat

import (
	"errors"
	"fmt"
)

// ErrCapacityExceeded is returned when a file does not fit into the
// clusters left on the volume.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// CapacityError describes which file did not fit.
type CapacityError struct {
	Name string
	Need uint32 // clusters required by the file
	Free uint32 // clusters left when the file was allocated
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: needs %d clusters, only %d free: %v", e.Name, e.Need, e.Free, ErrCapacityExceeded)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrCapacityExceeded
}

// Chain is a contiguous run of clusters owned by one file.
type Chain struct {
	First uint32
	Count uint32
}

// Clusters returns the cluster indices of c, first to last.
func (c Chain) Clusters() []uint32 {
	clusters := make([]uint32, c.Count)
	for i := range clusters {
		clusters[i] = c.First + uint32(i)
	}
	return clusters
}

// Allocator hands out contiguous, increasing cluster runs starting at
// FirstCluster. Clusters are never reused or reordered.
type Allocator struct {
	clusterSize int64
	capacity    uint32
	next        uint32
}

// NewAllocator returns an Allocator for capacity clusters of clusterSize
// bytes each.
func NewAllocator(clusterSize int, capacity uint32) *Allocator {
	return &Allocator{
		clusterSize: int64(clusterSize),
		capacity:    capacity,
		next:        FirstCluster,
	}
}

// ClustersFor returns the number of clusters a file of size bytes
// occupies. Empty files still occupy one cluster.
func ClustersFor(size int64, clusterSize int) uint32 {
	n := (size + int64(clusterSize) - 1) / int64(clusterSize)
	if n == 0 {
		n = 1
	}
	return uint32(n)
}

// Free returns the number of clusters not yet allocated.
func (a *Allocator) Free() uint32 {
	return a.capacity - (a.next - FirstCluster)
}

// Allocate reserves the clusters for a file of size bytes.
func (a *Allocator) Allocate(name string, size int64) (Chain, error) {
	if size < 0 {
		return Chain{}, fmt.Errorf("%s: negative size %d", name, size)
	}
	need := ClustersFor(size, int(a.clusterSize))
	if free := a.Free(); need > free {
		return Chain{}, &CapacityError{Name: name, Need: need, Free: free}
	}
	c := Chain{First: a.next, Count: need}
	a.next += need
	return c, nil
}
