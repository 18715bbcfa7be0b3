// Package memory implements a bounded, byte-addressable memory space.
//
// Storage is sparse: pages are allocated on first write, and every byte that
// was never written reads as the configured fill value. Accesses past the
// maximum address fail with ErrOutOfBounds; they never wrap.
package memory

import (
	"encoding/binary"
	"log"
	"maps"
	"slices"

	"github.com/ezrec/asmemu/register"
)

const (
	PAGE_BITS = 12             // Page size, as a power of two.
	PAGE_SIZE = 1 << PAGE_BITS // Bytes per page.
	PAGE_MASK = PAGE_SIZE - 1  // Offset-in-page mask.
)

// Config describes an architecture's memory.
type Config struct {
	MaxAddress uint64           // Highest valid address.
	Fill       byte             // Value of never-written bytes.
	Order      binary.ByteOrder // Byte order of multi-byte accesses.
	Aligned    bool             // If set, multi-byte accesses at odd addresses fail.
}

type page [PAGE_SIZE]byte

// Space is the memory of a single emulator instance.
type Space struct {
	Verbose bool // Set to enable verbose logging.

	config Config
	pages  map[uint64]*page
}

// New creates an empty memory space.
func New(config Config) (mem *Space) {
	if config.Order == nil {
		config.Order = binary.LittleEndian
	}

	mem = &Space{
		config: config,
		pages:  make(map[uint64]*page),
	}

	return
}

// check validates that [address, address+length) is in range.
func (mem *Space) check(address uint64, length int) (err error) {
	if length < 0 {
		err = &ErrOutOfBounds{Address: address, Size: length}
		return
	}
	if length == 0 {
		if address > mem.config.MaxAddress {
			err = &ErrOutOfBounds{Address: address, Size: length}
		}
		return
	}
	last := address + uint64(length) - 1
	if last < address || address > mem.config.MaxAddress || last > mem.config.MaxAddress {
		err = &ErrOutOfBounds{Address: address, Size: length}
	}
	return
}

// Read copies 'length' bytes starting at 'address'.
func (mem *Space) Read(address uint64, length int) (data []byte, err error) {
	err = mem.check(address, length)
	if err != nil {
		return
	}

	data = make([]byte, length)
	for n := range data {
		addr := address + uint64(n)
		pg, ok := mem.pages[addr>>PAGE_BITS]
		if ok {
			data[n] = pg[addr&PAGE_MASK]
		} else {
			data[n] = mem.config.Fill
		}
	}

	return
}

// Write stores data starting at 'address'. Nothing is written if any byte
// would be out of range.
func (mem *Space) Write(address uint64, data []byte) (err error) {
	err = mem.check(address, len(data))
	if err != nil {
		return
	}

	if mem.Verbose {
		log.Printf("memory: write 0x%x % x", address, data)
	}

	for n, value := range data {
		addr := address + uint64(n)
		index := addr >> PAGE_BITS
		pg, ok := mem.pages[index]
		if !ok {
			pg = &page{}
			for i := range pg {
				pg[i] = mem.config.Fill
			}
			mem.pages[index] = pg
		}
		pg[addr&PAGE_MASK] = value
	}

	return
}

// aligned checks the alignment rule for a multi-byte access.
func (mem *Space) aligned(address uint64, size register.Size) (err error) {
	if mem.config.Aligned && size > register.Byte && (address&1) != 0 {
		err = &ErrUnaligned{Address: address, Size: int(size)}
	}
	return
}

// ReadUint reads a 'size' byte integer in the configured byte order.
func (mem *Space) ReadUint(address uint64, size register.Size) (value uint64, err error) {
	if !size.Valid() {
		err = register.ErrRegisterSize
		return
	}
	err = mem.aligned(address, size)
	if err != nil {
		return
	}

	data, err := mem.Read(address, int(size))
	if err != nil {
		return
	}

	value = decode(mem.config.Order, data)
	return
}

// WriteUint writes the low 'size' bytes of value in the configured byte order.
func (mem *Space) WriteUint(address uint64, value uint64, size register.Size) (err error) {
	if !size.Valid() {
		err = register.ErrRegisterSize
		return
	}
	err = mem.aligned(address, size)
	if err != nil {
		return
	}

	err = mem.Write(address, encode(mem.config.Order, value, size))
	return
}

// Pages returns the base addresses of every allocated page, ascending.
func (mem *Space) Pages() []uint64 {
	bases := slices.Sorted(maps.Keys(mem.pages))
	for n := range bases {
		bases[n] <<= PAGE_BITS
	}
	return bases
}

func decode(order binary.ByteOrder, data []byte) (value uint64) {
	switch len(data) {
	case 1:
		value = uint64(data[0])
	case 2:
		value = uint64(order.Uint16(data))
	case 4:
		value = uint64(order.Uint32(data))
	case 8:
		value = order.Uint64(data)
	}
	return
}

func encode(order binary.ByteOrder, value uint64, size register.Size) (data []byte) {
	data = make([]byte, int(size))
	switch size {
	case register.Byte:
		data[0] = byte(value)
	case register.Half:
		order.PutUint16(data, uint16(value))
	case register.Word:
		order.PutUint32(data, uint32(value))
	case register.Double:
		order.PutUint64(data, value)
	}
	return
}
