package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/moffa90/go-lpcisp/bootloader"
	"github.com/moffa90/go-lpcisp/geometry"
	"github.com/moffa90/go-lpcisp/protocol"
	"github.com/moffa90/go-lpcisp/transport"
	"github.com/sirupsen/logrus"
)

// link is what both transport backends provide.
type link interface {
	protocol.Port
	bootloader.Signals
	io.Closer
}

// target is a synchronized bootloader session on an identified device.
type target struct {
	port    link
	session *protocol.Session
	member  *geometry.Member
	ids     []uint32
	log     logrus.FieldLogger
}

func transportConfig() (transport.Config, error) {
	cfg := transport.DefaultConfig()
	cfg.BaudRate = flagBaud
	cfg.InvertReset = flagInvertReset
	cfg.InvertBoot = flagInvertBoot

	var err error
	if cfg.ResetLine, err = transport.ParseLine(flagResetLine); err != nil {
		return cfg, err
	}
	if cfg.BootLine, err = transport.ParseLine(flagBootLine); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func openPort() (link, error) {
	if flagPort == "" {
		return nil, errors.New("no serial port given (use --port; see 'lpcisp ports')")
	}

	cfg, err := transportConfig()
	if err != nil {
		return nil, err
	}

	switch flagBackend {
	case "serial":
		return transport.OpenSerial(flagPort, cfg)
	case "term":
		return transport.OpenTerm(flagPort, cfg)
	}
	return nil, fmt.Errorf("unknown backend %q", flagBackend)
}

// connectToTarget opens the port, enters ISP mode, synchronizes and identifies the part.
func connectToTarget(ctx context.Context) (*target, error) {
	port, err := openPort()
	if err != nil {
		return nil, err
	}

	log := logger.WithField("prefix", "isp")
	t := &target{port: port, log: log}

	if !flagNoReset {
		log.Debug("entering ISP mode")
		if err := bootloader.EnterISP(port, time.Sleep); err != nil {
			port.Close()
			return nil, fmt.Errorf("enter ISP: %w", err)
		}
	}

	t.session, err = protocol.NewSession(port,
		protocol.WithTimeout(flagTimeout),
		protocol.WithLogger(log),
	)
	if err != nil {
		port.Close()
		return nil, err
	}

	if err := t.session.Synchronize(flagCrystal); err != nil {
		port.Close()
		return nil, fmt.Errorf("synchronize: %w", err)
	}
	if !flagEcho {
		if err := t.session.SetEcho(false); err != nil {
			port.Close()
			return nil, err
		}
	}

	if flagDevice != "" {
		t.member, err = geometry.FindByName(flagDevice)
	} else {
		t.member, t.ids, err = bootloader.Identify(ctx, t.session)
	}
	if err != nil {
		port.Close()
		return nil, err
	}

	log.WithField("device", t.member.Name).Info("connected")
	return t, nil
}

func (t *target) programmer(opts ...bootloader.Option) *bootloader.Programmer {
	base := []bootloader.Option{bootloader.WithLogger(logger.WithField("prefix", "flash"))}
	return bootloader.New(t.session, t.member, append(base, opts...)...)
}

// run resets the target into its application when signals are wired.
func (t *target) run() error {
	if flagNoReset {
		return errors.New("cannot reset the target with --no-reset; use 'lpcisp go'")
	}
	return bootloader.ResetToRun(t.port, time.Sleep)
}

func (t *target) Close() error {
	return t.port.Close()
}
