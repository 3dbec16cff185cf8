package whisplay

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// ST7789 command set used by the panel.
const (
	cmdSWReset  = 0x01
	cmdSleepOut = 0x11
	cmdNormal   = 0x13
	cmdInvOn    = 0x21
	cmdDispOn   = 0x29
	cmdCASet    = 0x2A
	cmdRASet    = 0x2B
	cmdRAMWr    = 0x2C
	cmdMADCtl   = 0x36
	cmdColMod   = 0x3A

	colMod16 = 0x55

	madctlRotate180 = 0xC0
)

// defaultMaxTx is used when the SPI connection does not report a limit.
const defaultMaxTx = 4096

// lcd drives an ST7789 through a periph SPI connection and a DC pin.
// Commands are sent with DC low, parameters and pixels with DC high.
type lcd struct {
	c       spi.Conn
	dc      gpio.PinOut
	rst     gpio.PinOut
	w, h    int
	xOff    int
	yOff    int
	rotated bool
	maxTx   int
}

func newLCD(port spi.Port, hz int64, dc, rst gpio.PinOut, w, h, xOff, yOff int, rotated bool) (*lcd, error) {
	if dc == nil {
		return nil, fmt.Errorf("lcd: dc pin is required")
	}
	c, err := port.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		return nil, fmt.Errorf("lcd: spi connect: %w", err)
	}
	d := &lcd{c: c, dc: dc, rst: rst, w: w, h: h, xOff: xOff, yOff: yOff, rotated: rotated, maxTx: defaultMaxTx}
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		d.maxTx = l.MaxTxSize()
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *lcd) init() error {
	if d.rst != nil {
		if err := d.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("lcd: rst high: %w", err)
		}
		time.Sleep(10 * time.Millisecond)
		if err := d.rst.Out(gpio.Low); err != nil {
			return fmt.Errorf("lcd: rst low: %w", err)
		}
		time.Sleep(10 * time.Millisecond)
		if err := d.rst.Out(gpio.High); err != nil {
			return fmt.Errorf("lcd: rst high: %w", err)
		}
		time.Sleep(120 * time.Millisecond)
	}

	madctl := byte(0x00)
	if d.rotated {
		madctl = madctlRotate180
	}
	steps := []struct {
		cmd   byte
		data  []byte
		sleep time.Duration
	}{
		{cmdSWReset, nil, 150 * time.Millisecond},
		{cmdSleepOut, nil, 120 * time.Millisecond},
		{cmdColMod, []byte{colMod16}, 0},
		{cmdMADCtl, []byte{madctl}, 0},
		{cmdInvOn, nil, 0},
		{cmdNormal, nil, 0},
		{cmdDispOn, nil, 20 * time.Millisecond},
	}
	for _, s := range steps {
		if err := d.command(s.cmd, s.data...); err != nil {
			return fmt.Errorf("lcd: init 0x%02X: %w", s.cmd, err)
		}
		if s.sleep > 0 {
			time.Sleep(s.sleep)
		}
	}
	return nil
}

func (d *lcd) command(cmd byte, params ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return err
	}
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return err
	}
	if len(params) == 0 {
		return nil
	}
	return d.data(params)
}

// data streams b with DC high, split to the connection's transfer limit.
func (d *lcd) data(b []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return err
	}
	for len(b) > 0 {
		n := min(len(b), d.maxTx)
		if err := d.c.Tx(b[:n], nil); err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// window sets the RAM address window for the next RAMWR.
func (d *lcd) window(x0, y0, x1, y1 int) error {
	x0, x1 = x0+d.xOff, x1+d.xOff
	y0, y1 = y0+d.yOff, y1+d.yOff
	if err := d.command(cmdCASet, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	return d.command(cmdRASet, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1))
}

func (d *lcd) drawRegion(x, y, w, h int, pix []byte) error {
	if err := d.window(x, y, x+w-1, y+h-1); err != nil {
		return fmt.Errorf("lcd: window: %w", err)
	}
	if err := d.command(cmdRAMWr); err != nil {
		return fmt.Errorf("lcd: ramwr: %w", err)
	}
	if err := d.data(pix); err != nil {
		return fmt.Errorf("lcd: pixels: %w", err)
	}
	return nil
}
