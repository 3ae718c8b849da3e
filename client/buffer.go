package client

// TransferBuffer holds one in-flight transfer: an outbound command or
// payload being flushed, or an inbound line or datagram being assembled.
//
// Invariant: cursor <= used <= len(data). For outbound transfers used is
// the amount to send and cursor the amount already sent. For inbound
// transfers used is the amount received and len(data) the limit.
type TransferBuffer struct {
	data   []byte
	used   int
	cursor int
}

// Load prepares an outbound transfer of a copy of p.
func (b *TransferBuffer) Load(p []byte) {
	b.ensure(len(p))
	b.used = copy(b.data, p)
	b.cursor = 0
}

// Unsent returns the part of an outbound transfer not yet sent.
func (b *TransferBuffer) Unsent() []byte {
	return b.data[b.cursor:b.used]
}

// Advance records that n more bytes were sent.
func (b *TransferBuffer) Advance(n int) {
	b.cursor += n
	if b.cursor > b.used {
		b.cursor = b.used
	}
}

// Pending reports whether an outbound transfer still has bytes to send.
func (b *TransferBuffer) Pending() bool {
	return b.cursor < b.used
}

// Expect prepares an inbound transfer of at most limit bytes.
func (b *TransferBuffer) Expect(limit int) {
	b.ensure(limit)
	b.used = 0
	b.cursor = 0
}

// Space returns the free part of an inbound transfer.
func (b *TransferBuffer) Space() []byte {
	return b.data[b.used:]
}

// Fill records that n more bytes were received into Space.
func (b *TransferBuffer) Fill(n int) {
	b.used += n
	if b.used > len(b.data) {
		b.used = len(b.data)
	}
}

// Full reports whether an inbound transfer reached its limit.
func (b *TransferBuffer) Full() bool {
	return b.used == len(b.data)
}

// Bytes returns what an inbound transfer received so far. The slice is
// reused by the next transfer.
func (b *TransferBuffer) Bytes() []byte {
	return b.data[:b.used]
}

func (b *TransferBuffer) Len() int {
	return b.used
}

func (b *TransferBuffer) Cap() int {
	return cap(b.data)
}

// Reset empties the buffer but keeps its storage.
func (b *TransferBuffer) Reset() {
	b.data = b.data[:0]
	b.used = 0
	b.cursor = 0
}

// Release drops the storage.
func (b *TransferBuffer) Release() {
	*b = TransferBuffer{}
}

// ensure resizes data to n bytes. Growing copies into fresh storage so
// slices previously returned by Bytes are never written through.
func (b *TransferBuffer) ensure(n int) {
	if cap(b.data) >= n {
		b.data = b.data[:n]
		return
	}

	size := 2 * cap(b.data)
	if size < n {
		size = n
	}

	data := make([]byte, n, size)
	copy(data, b.data[:b.used])
	b.data = data
}
