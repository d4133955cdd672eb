package render

// Producer renders frames for stream positions by asking Lookup what is
// playing there.
type Producer struct {
	Renderer *Renderer
	Lookup   MetadataLookup
}

// Frame renders frame index, which shows the stream at sample position.
func (p *Producer) Frame(index, position int64) []byte {
	var (
		meta   TrackMeta
		offset int64
	)
	if p.Lookup != nil {
		meta, offset = p.Lookup.MetadataAt(position)
	}
	return p.Renderer.Render(Progress{Frame: index, Sample: offset, TrackSamples: meta.Samples}, meta)
}

// FrameBytes is the size of every frame.
func (p *Producer) FrameBytes() int {
	return p.Renderer.FrameBytes()
}
