package capture

import (
	"fmt"

	"gocv.io/x/gocv"

	"stereo-mapper/internal/opencv/memory"
	"stereo-mapper/internal/opencv/safe"
)

// Device is one opened camera. Reads land in a scratch Mat and are copied into a pooled Mat
// of the same shape, so frames handed out survive the next read.
type Device struct {
	name    string
	id      interface{}
	vc      *gocv.VideoCapture
	scratch *safe.Mat
	pool    *memory.Manager
}

// OpenDevice opens a camera index or a video file path.
func OpenDevice(name string, id interface{}, pool *memory.Manager) (*Device, error) {
	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, fmt.Errorf("open %s camera %v: %w", name, id, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open %s camera %v: device did not open", name, id)
	}
	return &Device{
		name:    name,
		id:      id,
		vc:      vc,
		scratch: safe.NewEmpty(name + "-scratch"),
		pool:    pool,
	}, nil
}

func (d *Device) Name() string {
	return d.name
}

// Read grabs the next frame. An empty read is an error; the device is not retried.
func (d *Device) Read() (*Frame, error) {
	if ok := d.vc.Read(d.scratch.Ptr()); !ok || d.scratch.Empty() {
		return nil, fmt.Errorf("read %s camera %v: no frame", d.name, d.id)
	}

	rows, cols, matType := d.scratch.Rows(), d.scratch.Cols(), d.scratch.Type()
	var dst *safe.Mat
	var err error
	if d.pool != nil {
		dst, err = d.pool.GetMat(rows, cols, matType)
	} else {
		dst, err = safe.NewMatWithTag(rows, cols, matType, d.name)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s camera %v: %w", d.name, d.id, err)
	}
	d.scratch.Ptr().CopyTo(dst.Ptr())
	return newFrame(dst, d.pool), nil
}

func (d *Device) Close() error {
	d.scratch.Close()
	if err := d.vc.Close(); err != nil {
		return fmt.Errorf("close %s camera %v: %w", d.name, d.id, err)
	}
	return nil
}
