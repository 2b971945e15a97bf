package trigger

import "github.com/MrWong99/voicetrigger/pkg/audio"

// Buffer holds the chunks of the open segment in arrival order together with
// their concatenated PCM. Len always equals the summed length of the chunks.
type Buffer struct {
	chunks []audio.Chunk
	pcm    []byte
}

// Append stores c whole.
func (b *Buffer) Append(c audio.Chunk) {
	b.chunks = append(b.chunks, c)
	b.pcm = append(b.pcm, c.Data...)
}

// Len returns the number of buffered PCM bytes.
func (b *Buffer) Len() int { return len(b.pcm) }

// Count returns the number of buffered chunks.
func (b *Buffer) Count() int { return len(b.chunks) }

// Chunks returns the buffered chunks. The slice is invalidated by Reset.
func (b *Buffer) Chunks() []audio.Chunk { return b.chunks }

// Bytes returns the concatenated PCM. The slice is invalidated by Reset.
func (b *Buffer) Bytes() []byte { return b.pcm }

// Reset empties both views together. Backing arrays are released so that no
// audio outlives its segment.
func (b *Buffer) Reset() {
	b.chunks = nil
	b.pcm = nil
}
