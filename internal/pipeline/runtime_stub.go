//go:build !govips || !cgo

package pipeline

func Startup() error {
	return nil
}

func Shutdown() {}

func newTransformer(quality int) (Transformer, error) {
	return imagingTransformer{quality: quality}, nil
}
