package models

// SizeRecord holds the footprint of one built kernel version. The segment
// sizes come from the size tool; Compressed is the byte length of the boot
// image.
type SizeRecord struct {
	Version    Version `json:"version" parquet:"version"`
	Text       int64   `json:"text" parquet:"text"`
	Data       int64   `json:"data" parquet:"data"`
	BSS        int64   `json:"bss" parquet:"bss"`
	Dec        int64   `json:"dec" parquet:"dec"`
	Compressed int64   `json:"compressed" parquet:"compressed"`
}

// ROMXIP is the read-only footprint of an execute-in-place image.
func (r SizeRecord) ROMXIP() int64 {
	return r.Data + r.Text
}

// RAMXIP is the RAM footprint of an execute-in-place image.
func (r SizeRecord) RAMXIP() int64 {
	return r.BSS + r.Data
}

// Total is the RAM footprint when the image is decompressed at boot.
func (r SizeRecord) Total() int64 {
	return r.BSS + r.Data + r.Text
}
