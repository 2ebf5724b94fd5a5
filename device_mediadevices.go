//go:build linux && !nodevices

package videoengine

import (
	"fmt"
	"image"
	"image/draw"
	"sync"
	"time"

	"github.com/pion/mediadevices/pkg/driver"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"
	log "github.com/sirupsen/logrus"
)

// CameraKind is the device kind served by the camera capturer.
const CameraKind = "camera"

// DeviceCapturer captures from a camera through the mediadevices drivers.
// Start is asynchronous: it returns CapturePending and the outcome is
// signalled once the driver delivers its reader.
type DeviceCapturer struct {
	*BaseCapturer

	drv   driver.Driver
	props []prop.Media // aligned with SupportedFormats
	log   *log.Entry

	mu   sync.Mutex
	stop chan struct{}
}

func cameraDevices() []Device {
	drivers := driver.GetManager().Query(driver.FilterVideoRecorder())
	devices := make([]Device, 0, len(drivers))
	for _, d := range drivers {
		devices = append(devices, Device{ID: d.ID(), Name: d.Info().Label, Kind: CameraKind})
	}
	return devices
}

// NewDeviceCapturer opens the camera with the given driver id and reads its
// supported formats.
func NewDeviceCapturer(id string) (*DeviceCapturer, error) {
	var drv driver.Driver
	for _, d := range driver.GetManager().Query(driver.FilterVideoRecorder()) {
		if d.ID() == id {
			drv = d
			break
		}
	}
	if drv == nil {
		return nil, fmt.Errorf("%w: camera %q not found", ErrNoDevice, id)
	}

	opened := false
	if drv.Status() == driver.StateClosed {
		if err := drv.Open(); err != nil {
			return nil, fmt.Errorf("failed to open camera %q: %w", id, err)
		}
		opened = true
	}
	props := drv.Properties()
	if opened {
		drv.Close()
	}

	formats := make([]VideoFormat, 0, len(props))
	kept := make([]prop.Media, 0, len(props))
	for _, p := range props {
		if p.Width <= 0 || p.Height <= 0 {
			continue
		}
		fps := int(p.FrameRate + 0.5)
		if fps <= 0 {
			fps = DefaultVideoFormat.Framerate()
		}
		formats = append(formats, NewVideoFormat(p.Width, p.Height, fps, pixelFormatFromFrame(p.FrameFormat)))
		kept = append(kept, p)
	}

	return &DeviceCapturer{
		BaseCapturer: NewBaseCapturer(id, formats),
		drv:          drv,
		props:        kept,
		log:          defaultLogger().WithFields(log.Fields{"subsystem": "camera", "device": id}),
	}, nil
}

func pixelFormatFromFrame(f frame.Format) PixelFormat {
	switch f {
	case frame.FormatI420:
		return PixelFormatI420
	case frame.FormatNV12:
		return PixelFormatNV12
	default:
		return PixelFormatAny
	}
}

// propFor returns the driver property that produced format.
func (d *DeviceCapturer) propFor(format VideoFormat) (prop.Media, bool) {
	for i, f := range d.SupportedFormats() {
		if f == format {
			return d.props[i], true
		}
	}
	return prop.Media{}, false
}

// Start implements VideoCapturer. A start already in flight reports
// CapturePending until the driver delivers its reader.
func (d *DeviceCapturer) Start(format VideoFormat) (CaptureResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		if d.IsRunning() {
			return CaptureSuccess, nil
		}
		return CapturePending, nil
	}
	p, ok := d.propFor(format)
	if !ok {
		return CaptureFailure, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	if d.drv.Status() == driver.StateClosed {
		if err := d.drv.Open(); err != nil {
			return CaptureFailure, fmt.Errorf("failed to open camera: %w", err)
		}
	}

	stop := make(chan struct{})
	d.stop = stop
	d.SetStarting()
	go d.run(p, stop)
	return CapturePending, nil
}

// record starts the driver unless the run was stopped first. A nil reader
// with a nil error means it was.
func (d *DeviceCapturer) record(p prop.Media, stop chan struct{}) (video.Reader, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != stop {
		return nil, nil
	}
	recorder, ok := d.drv.(driver.VideoRecorder)
	if !ok {
		return nil, fmt.Errorf("%w: driver cannot record video", ErrDevice)
	}
	return recorder.VideoRecord(p)
}

// release closes the driver after a run ended on its own. It reports false
// when Stop already did.
func (d *DeviceCapturer) release(stop chan struct{}) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != stop {
		return false
	}
	d.stop = nil
	if err := d.drv.Close(); err != nil {
		d.log.WithError(err).Warn("failed to close camera")
	}
	return true
}

func (d *DeviceCapturer) run(p prop.Media, stop chan struct{}) {
	reader, err := d.record(p, stop)
	if err != nil {
		d.log.WithError(err).Error("camera failed to start")
		if d.release(stop) {
			d.SignalStart(CaptureFailure)
		}
		return
	}
	if reader == nil {
		return
	}
	d.SignalStart(CaptureSuccess)

	start := time.Now()
	interval := FPSToInterval(int(p.FrameRate + 0.5)).Nanoseconds()
	var rgba *image.RGBA
	for {
		img, release, err := reader.Read()
		if err != nil {
			select {
			case <-stop:
			default:
				d.log.WithError(err).Warn("camera read failed")
				if d.release(stop) {
					d.SignalFailure()
				}
			}
			return
		}

		f, buf := imageToFrame(img, rgba)
		rgba = buf
		if f != nil {
			f.Timestamp = time.Since(start).Nanoseconds()
			f.Duration = interval
			d.DeliverFrame(f)
		}
		if release != nil {
			release()
		}
	}
}

// Stop implements VideoCapturer. Closing the driver ends the reader.
func (d *DeviceCapturer) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop == nil {
		return nil
	}
	close(d.stop)
	d.stop = nil
	d.SetRunning(false)
	if err := d.drv.Close(); err != nil {
		return fmt.Errorf("failed to close camera: %w", err)
	}
	return nil
}

// imageToFrame wraps 4:2:0 YCbCr images without copying and converts
// anything else through an RGBA buffer that is reused between calls.
func imageToFrame(img image.Image, rgba *image.RGBA) (*VideoFrame, *image.RGBA) {
	b := img.Bounds()
	if b.Empty() {
		return nil, rgba
	}

	if ycc, ok := img.(*image.YCbCr); ok && ycc.SubsampleRatio == image.YCbCrSubsampleRatio420 {
		return &VideoFrame{
			Data:   [][]byte{ycc.Y, ycc.Cb, ycc.Cr},
			Stride: []int{ycc.YStride, ycc.CStride, ycc.CStride},
			Width:  b.Dx(),
			Height: b.Dy(),
			Format: PixelFormatI420,
		}, rgba
	}

	if rgba == nil || rgba.Bounds() != b {
		rgba = image.NewRGBA(b)
	}
	draw.Draw(rgba, b, img, b.Min, draw.Src)
	return &VideoFrame{
		Data:   [][]byte{rgba.Pix},
		Stride: []int{rgba.Stride},
		Width:  b.Dx(),
		Height: b.Dy(),
		Format: PixelFormatRGBA32,
	}, rgba
}

// Close stops capturing.
func (d *DeviceCapturer) Close() error { return d.Stop() }

func init() {
	RegisterCapturer(CameraKind, func(device Device) (VideoCapturer, error) {
		return NewDeviceCapturer(device.ID)
	})
}
