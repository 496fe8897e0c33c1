// Command simtap-filesim plays the producer role for local testing:
// it publishes a synthetic snapshot region and bumps the data-valid
// counter at a fixed tick rate, rotating the sample buffers the way a
// real sim does.
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pitlane/simtap/internal/sdk"
	"github.com/pitlane/simtap/internal/shm"
	"github.com/pitlane/simtap/internal/testutil"
	"github.com/pitlane/simtap/utils"
)

const (
	regionSize      = 64 * 1024
	varHeaderOffset = int32(1024)
	payloadBase     = int32(8192)
	payloadStride   = int32(1024)
)

func main() {
	regionPath := flag.String("region", shm.DefaultRegionPath(sdk.DefaultMappingName), "snapshot region file")
	signalPath := flag.String("signal", shm.DefaultRegionPath(sdk.DefaultSignalName), "data-valid counter file")
	hz := flag.Int("hz", 60, "publish rate")
	flag.Parse()

	logger := utils.DefaultLogger("filesim")
	if err := run(logger, *regionPath, *signalPath, *hz); err != nil {
		logger.Error("Exiting", utils.Err(err))
		os.Exit(1)
	}
}

func run(logger *utils.Logger, regionPath, signalPath string, hz int) error {
	region := testutil.NewSnapshotBuilder(regionSize, varHeaderOffset).
		WithTickRate(int32(hz)).
		WithStatus(1).
		SetBufLen(payloadStride).
		AddVar(4, 0, 1, false, "Speed", "Vehicle speed", "m/s").
		AddVar(4, 4, 1, false, "RPM", "Engine revs", "revs/min").
		AddVar(0, 8, 16, false, "DriverName", "Driver name", "").
		WithSessionInfo("WeekendInfo:\n TrackName: filesim\n TrackDisplayName: File Simulator\n", 4096, 1).
		Build()

	for i := 0; i < sdk.MaxBufs; i++ {
		writeBufSlot(region, i, 0, payloadBase+int32(i)*payloadStride)
	}

	if err := os.WriteFile(regionPath, region, 0o644); err != nil {
		return fmt.Errorf("publish region: %w", err)
	}
	if err := os.WriteFile(signalPath, make([]byte, 4), 0o644); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	logger.Info("Publishing", utils.String("region", regionPath), utils.Int("hz", hz))

	regionFile, err := os.OpenFile(regionPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer regionFile.Close()
	signalFile, err := os.OpenFile(signalPath, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer signalFile.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	var tick int32
	counter := make([]byte, 4)
	for {
		select {
		case <-stop:
			logger.Info("Stopping", utils.Int32("ticks", tick))
			return nil
		case <-ticker.C:
			tick++
			slot := int(tick) % sdk.MaxBufs
			payload := payloadBase + int32(slot)*payloadStride

			// Rotate: write the slot's samples, then its tick, then
			// bump the data-valid counter.
			t := float64(tick) / float64(hz)
			putFloat32(region, payload, float32(45+10*math.Sin(t)))
			putFloat32(region, payload+4, float32(6200+1500*math.Sin(t*3)))
			copy(region[payload+8:payload+24], "F.Simmons\x00\x00\x00\x00\x00\x00\x00")
			writeBufSlot(region, slot, tick, payload)

			if _, err := regionFile.WriteAt(region, 0); err != nil {
				return fmt.Errorf("rewrite region: %w", err)
			}
			binary.LittleEndian.PutUint32(counter, uint32(tick))
			if _, err := signalFile.WriteAt(counter, 0); err != nil {
				return fmt.Errorf("bump signal: %w", err)
			}
		}
	}
}

func writeBufSlot(region []byte, slot int, tick, offset int32) {
	at := sdk.HeaderSize - sdk.MaxBufs*sdk.VarBufSize + slot*sdk.VarBufSize
	binary.LittleEndian.PutUint32(region[at:], uint32(tick))
	binary.LittleEndian.PutUint32(region[at+4:], uint32(offset))
}

func putFloat32(region []byte, off int32, v float32) {
	binary.LittleEndian.PutUint32(region[off:], math.Float32bits(v))
}
