package squash4

// options holds Mount's configurable behavior. The zero value matches the
// source's literal behavior exactly; every Option only ever relaxes or
// extends that default, never changes it silently.
type options struct {
	strictFragmentRouting bool
}

func defaultOptions() *options {
	return &options{}
}

// Option configures a Mount at Open time.
type Option func(*options)

// StrictFragmentRouting makes OpenFile.ReadAt prefer a fragmented file's
// regular data blocks whenever a read falls entirely within them. A read
// that touches the fragment tail at all is not split: the whole read goes
// through the fragment branch, as it does without this option.
//
// The source (and this reader, by default) always routes every read of a
// fragmented file through the fragment branch, even when the requested
// range never touches the fragment's data — see OpenFile.readData. That
// is almost certainly fine for a boot loader's read-the-whole-file usage
// pattern, but it means every read of a fragmented file decompresses the
// shared fragment block, which can be any other file's fragment data
// packed alongside this one's. Callers that read fragmented files
// piecewise and care about not paying that cost unnecessarily can opt
// into the stricter routing with this option.
func StrictFragmentRouting(enabled bool) Option {
	return func(o *options) {
		o.strictFragmentRouting = enabled
	}
}
