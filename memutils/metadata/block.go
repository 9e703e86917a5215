package metadata

// BlockPtr identifies a block by the offset of its payload within the heap region. The header
// sits one word before it.
type BlockPtr int

// NullPtr is never the payload offset of a block
const NullPtr BlockPtr = 0

func (m *ExplicitListMetadata) headerOffset(bp BlockPtr) int {
	return int(bp) - WordSize
}

func (m *ExplicitListMetadata) footerOffset(bp BlockPtr) int {
	return int(bp) + m.header(bp).Size() - Overhead
}

func (m *ExplicitListMetadata) header(bp BlockPtr) Tag {
	return DecodeTag(m.r.Word(m.headerOffset(bp)))
}

func (m *ExplicitListMetadata) footer(bp BlockPtr) Tag {
	return DecodeTag(m.r.Word(m.footerOffset(bp)))
}

// setTags writes tag into the header of bp and into the footer implied by tag's size
func (m *ExplicitListMetadata) setTags(bp BlockPtr, tag Tag) {
	word := tag.Encode()
	m.r.PutWord(m.headerOffset(bp), word)
	m.r.PutWord(int(bp)+tag.Size()-Overhead, word)
}

// setEpilogue writes the zero-sized epilogue header for a block that starts at bp
func (m *ExplicitListMetadata) setEpilogue(bp BlockPtr) {
	m.r.PutWord(m.headerOffset(bp), mustTag(0, true).Encode())
}

func (m *ExplicitListMetadata) nextBlock(bp BlockPtr) BlockPtr {
	return bp + BlockPtr(m.header(bp).Size())
}

// prevBlock reads the footer that immediately precedes bp's header
func (m *ExplicitListMetadata) prevBlock(bp BlockPtr) BlockPtr {
	return bp - BlockPtr(m.prevFooter(bp).Size())
}

func (m *ExplicitListMetadata) prevFooter(bp BlockPtr) Tag {
	return DecodeTag(m.r.Word(int(bp) - Overhead))
}

func (m *ExplicitListMetadata) payloadCapacity(bp BlockPtr) int {
	return m.header(bp).Size() - Overhead
}

// Tags returns the header and footer of the block at bp as they are currently written
func (m *ExplicitListMetadata) Tags(bp BlockPtr) (header Tag, footer Tag) {
	return m.header(bp), m.footer(bp)
}
