package transport

// FDSet is a set of file descriptors, used both to say which descriptors
// want read or write attention and to report which ones are ready.
type FDSet map[int]struct{}

func NewFDSet() FDSet {
	return make(FDSet)
}

func (s FDSet) Set(fd int) {
	s[fd] = struct{}{}
}

func (s FDSet) IsSet(fd int) bool {
	_, ok := s[fd]
	return ok
}

func (s FDSet) Clear() {
	for fd := range s {
		delete(s, fd)
	}
}

func (s FDSet) Len() int {
	return len(s)
}
