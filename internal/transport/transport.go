// Package transport opens the channel selected by the configuration of the
// example programs.
package transport

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/oxplot/go-i2cadapter"
	"github.com/oxplot/go-i2cadapter/bridgechannel"
	"github.com/oxplot/go-i2cadapter/i2cchannel"
	"github.com/oxplot/go-i2cadapter/internal/config"
	"github.com/oxplot/go-i2cadapter/shdlc"
	"github.com/oxplot/go-i2cadapter/txlog"
)

// serialReadTimeout bounds a single serial read so that response timeouts of
// the bridge are honored.
const serialReadTimeout = 20 * time.Millisecond

// Open opens the channel described by cfg. Every transaction is logged to
// log at debug level. The returned closer releases the bus or serial port.
func Open(cfg *config.Config, log *zap.Logger) (i2cadapter.Channel, io.Closer, error) {
	addr := uint16(cfg.Device.Address)
	switch cfg.Transport {
	case "i2c":
		if _, err := host.Init(); err != nil {
			return nil, nil, fmt.Errorf("init host: %w", err)
		}
		bus, err := i2creg.Open(cfg.I2C.Bus)
		if err != nil {
			return nil, nil, fmt.Errorf("open i2c bus %q: %w", cfg.I2C.Bus, err)
		}
		if cfg.I2C.SpeedHz > 0 {
			if err := bus.SetSpeed(physic.Frequency(cfg.I2C.SpeedHz) * physic.Hertz); err != nil {
				bus.Close()
				return nil, nil, fmt.Errorf("set i2c speed: %w", err)
			}
		}
		log.Info("opened i2c bus", zap.String("bus", bus.String()), zap.Uint16("addr", addr))
		ch := i2cchannel.New(bus, addr, i2cchannel.WithTimeout(cfg.Device.Timeout))
		return txlog.New(ch, log), bus, nil

	case "bridge":
		port, err := serial.Open(cfg.Bridge.SerialPort, &serial.Mode{BaudRate: cfg.Bridge.Baud})
		if err != nil {
			return nil, nil, fmt.Errorf("open serial port %q: %w", cfg.Bridge.SerialPort, err)
		}
		if err := port.SetReadTimeout(serialReadTimeout); err != nil {
			port.Close()
			return nil, nil, fmt.Errorf("set serial read timeout: %w", err)
		}
		log.Info("opened sensor bridge",
			zap.String("port", cfg.Bridge.SerialPort),
			zap.Int("baud", cfg.Bridge.Baud),
			zap.Int("bridge_port", cfg.Bridge.Port),
			zap.Uint16("addr", addr))
		dev := shdlc.NewDevice(port, byte(cfg.Bridge.SlaveAddress))
		ch := bridgechannel.New(dev, bridgechannel.Port(cfg.Bridge.Port), addr, bridgechannel.WithTimeout(cfg.Device.Timeout))
		return txlog.New(ch, log), port, nil
	}
	return nil, nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}
