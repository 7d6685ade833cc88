// Package shm provides named shared memory regions that several processes map
// into their own address space.
//
// A Region is the backing object; Map adds the process-local view. The two have
// separate lifetimes: unmapping only detaches this process, and the named
// object lives on until it is unlinked (Linux) or its last handle closes
// (Windows).
//
// Example usage:
//
//	r, err := shm.Create("/frames", 1<<20)
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	buf, err := r.Map(1 << 20)
//	if err != nil {
//		return err // the region handle is already released
//	}
//	copy(buf, frame)
//
// The package imposes no layout on the bytes and no locking; pair a region with
// an event from package event to tell peers when data is ready.
package shm
