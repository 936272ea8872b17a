package engine

const (
	kib = 1024
	mib = 1024 * kib
	gib = 1024 * mib
)

// SizeClass groups files by how they stress the machine: small files are
// bound by hashing CPU, large ones by disk throughput.
type SizeClass int

const (
	Small SizeClass = iota
	Medium
	Large
)

func (c SizeClass) String() string {
	switch c {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return "unknown"
	}
}

// ClassPolicy holds the size-class thresholds and streaming buffer sizes.
type ClassPolicy struct {
	LargeThreshold   int64 // files strictly larger than this are Large
	SmallBufferSize  int
	MediumBufferSize int
	LargeBufferSize  int
}

// DefaultClassPolicy returns the reference thresholds: Large above 5 GiB,
// with 1/2/4 MiB buffers for small/medium/large.
func DefaultClassPolicy() ClassPolicy {
	return ClassPolicy{
		LargeThreshold:   5 * gib,
		SmallBufferSize:  1 * mib,
		MediumBufferSize: 2 * mib,
		LargeBufferSize:  4 * mib,
	}
}

// Classification is the result of classifying one file.
type Classification struct {
	Class      SizeClass
	BufferSize int
}

// Classify assigns a size class to a file of size bytes. mixed reports
// whether the batch also contains Large files; non-large files in a mixed
// batch are Medium rather than Small.
func (p ClassPolicy) Classify(size int64, mixed bool) Classification {
	p = p.withDefaults()
	switch {
	case size > p.LargeThreshold:
		return Classification{Class: Large, BufferSize: p.LargeBufferSize}
	case mixed:
		return Classification{Class: Medium, BufferSize: p.MediumBufferSize}
	default:
		return Classification{Class: Small, BufferSize: p.SmallBufferSize}
	}
}

// IsLarge reports whether size lands in the Large class.
func (p ClassPolicy) IsLarge(size int64) bool {
	return size > p.withDefaults().LargeThreshold
}

func (p ClassPolicy) withDefaults() ClassPolicy {
	def := DefaultClassPolicy()
	if p.LargeThreshold <= 0 {
		p.LargeThreshold = def.LargeThreshold
	}
	if p.SmallBufferSize <= 0 {
		p.SmallBufferSize = def.SmallBufferSize
	}
	if p.MediumBufferSize <= 0 {
		p.MediumBufferSize = def.MediumBufferSize
	}
	if p.LargeBufferSize <= 0 {
		p.LargeBufferSize = def.LargeBufferSize
	}
	return p
}
