package panel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/gousb"
)

// USBOpener opens the panel through libusb.
type USBOpener struct {
	VendorID  uint16
	ProductID uint16
	Interface int

	mu  sync.Mutex
	ctx *gousb.Context
}

// NewUSBOpener returns an opener for the given identity and interface.
func NewUSBOpener(vendorID, productID uint16, iface int) *USBOpener {
	return &USBOpener{
		VendorID:  vendorID,
		ProductID: productID,
		Interface: iface,
	}
}

// Open locates the device, detaches any kernel driver, claims the interface
// (alt setting 0), and resolves its first bulk-OUT endpoint.
func (o *USBOpener) Open(_ context.Context) (Endpoint, error) {
	o.mu.Lock()
	if o.ctx == nil {
		o.ctx = gousb.NewContext()
	}
	usbCtx := o.ctx
	o.mu.Unlock()

	dev, err := usbCtx.OpenDeviceWithVIDPID(gousb.ID(o.VendorID), gousb.ID(o.ProductID))
	if err != nil {
		if dev != nil {
			dev.Close()
		}
		return nil, fmt.Errorf("opening %04x:%04x: %w", o.VendorID, o.ProductID, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("%04x:%04x: %w", o.VendorID, o.ProductID, ErrDeviceNotFound)
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, fmt.Errorf("enabling kernel driver auto-detach: %w", err)
	}

	cfgNum, err := dev.ActiveConfigNum()
	if err != nil || cfgNum == 0 {
		cfgNum = 1
	}
	cfg, err := dev.Config(cfgNum)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("selecting config %d: %w", cfgNum, err)
	}

	intf, err := cfg.Interface(o.Interface, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("claiming interface %d: %w", o.Interface, err)
	}

	epNum := -1
	for _, desc := range intf.Setting.Endpoints {
		if desc.Direction == gousb.EndpointDirectionOut && desc.TransferType == gousb.TransferTypeBulk {
			if epNum < 0 || desc.Number < epNum {
				epNum = desc.Number
			}
		}
	}
	if epNum < 0 {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, ErrNoBulkOut
	}

	out, err := intf.OutEndpoint(epNum)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, fmt.Errorf("opening endpoint %d: %w", epNum, err)
	}

	return &usbEndpoint{dev: dev, cfg: cfg, intf: intf, out: out}, nil
}

// Close releases the libusb context.
func (o *USBOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctx == nil {
		return nil
	}
	err := o.ctx.Close()
	o.ctx = nil
	return err
}

type usbEndpoint struct {
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
}

func (e *usbEndpoint) Write(ctx context.Context, p []byte) (int, error) {
	return e.out.WriteContext(ctx, p)
}

func (e *usbEndpoint) Close() error {
	e.intf.Close()
	if err := e.cfg.Close(); err != nil {
		e.dev.Close()
		return fmt.Errorf("releasing config: %w", err)
	}
	return e.dev.Close()
}
