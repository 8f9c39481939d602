// Package fat implements the File Allocation Table of FAT12 and FAT16
// volumes: packing and unpacking of table entries, contiguous cluster
// allocation and cluster chain traversal.
//
// Clusters 0 and 1 are reserved; the first allocatable cluster is 2. Files
// are allocated in the order they are presented and are never reordered,
// so that the resulting image is reproducible byte for byte.
package fat
