package netaio

import "github.com/valyala/bytebufferpool"

// getBuf and putBuf centralize bytebufferpool usage for the small,
// short-lived scratch buffers the codec and plugins need when
// serializing a message or a body for hashing.
func getBuf() *bytebufferpool.ByteBuffer {
	return bytebufferpool.Get()
}

func putBuf(buf *bytebufferpool.ByteBuffer) {
	bytebufferpool.Put(buf)
}
