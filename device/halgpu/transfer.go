// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package halgpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framepool/device"
)

// rowSpan returns the aligned number of bytes written per row. Rows shorter
// than the alignment are padded into the gap before the next pitch.
func rowSpan(rowBytes, pitch uint64) (uint64, error) {
	span := alignUp(rowBytes, copyAlignment)
	if pitch%copyAlignment != 0 || span > pitch {
		return 0, fmt.Errorf("halgpu: pitch %d is not %d-byte aligned: %w", pitch, copyAlignment, device.ErrOutOfRange)
	}
	return span, nil
}

// regionSize is the number of device bytes covered by a strided region.
func regionSize(pitch, span uint64, rows int) uint64 {
	return uint64(rows-1)*pitch + span
}

// submitAndWait submits cmds (possibly none, to flush queued writes) and
// blocks until the GPU signals completion.
func submitAndWait(dev hal.Device, queue hal.Queue, cmds []hal.CommandBuffer) error {
	fence, err := dev.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer dev.DestroyFence(fence)

	if err := queue.Submit(cmds, fence, 1); err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fenceOK, err := dev.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return ErrFenceTimeout
	}
	return nil
}

// encodeCopies records buffer copies into one command buffer and runs it.
func encodeCopies(dev hal.Device, queue hal.Queue, label string, src, dst hal.Buffer, regions []hal.BufferCopy) error {
	encoder, err := dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	encoder.CopyBufferToBuffer(src, dst, regions)
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer dev.FreeCommandBuffer(cmdBuf)

	return submitAndWait(dev, queue, []hal.CommandBuffer{cmdBuf})
}

// CopyHostToDevice queues a strided upload through queue.WriteBuffer.
func (d *Device) CopyHostToDevice(s device.StreamID, dst device.BufferID, dstPitch uint64,
	src []byte, srcPitch, rowBytes uint64, rows int) error {
	b, _, _, err := d.lookup(dst)
	if err != nil {
		return err
	}
	if err := device.CheckCopy2D(b.size, dstPitch, uint64(len(src)), srcPitch, rowBytes, rows); err != nil {
		return fmt.Errorf("copy into buffer %d: %w", dst, err)
	}
	if rows <= 0 || rowBytes == 0 {
		return d.Submit(s, func() error { return nil })
	}
	span, err := rowSpan(rowBytes, dstPitch)
	if err != nil {
		return err
	}

	return d.Submit(s, func() error {
		b, dev, queue, err := d.lookup(dst)
		if err != nil {
			return err
		}
		if span == rowBytes && dstPitch == srcPitch {
			queue.WriteBuffer(b.buf, 0, src[:regionSize(srcPitch, span, rows)])
		} else {
			row := make([]byte, span)
			for y := range uint64(rows) {
				copy(row, src[y*srcPitch:y*srcPitch+rowBytes])
				queue.WriteBuffer(b.buf, y*dstPitch, row)
			}
		}
		return submitAndWait(dev, queue, nil)
	})
}

// CopyDeviceToHost queues a strided readback through a staging buffer.
func (d *Device) CopyDeviceToHost(s device.StreamID, dst []byte, dstPitch uint64,
	src device.BufferID, srcPitch, rowBytes uint64, rows int) error {
	b, _, _, err := d.lookup(src)
	if err != nil {
		return err
	}
	if err := device.CheckCopy2D(uint64(len(dst)), dstPitch, b.size, srcPitch, rowBytes, rows); err != nil {
		return fmt.Errorf("copy from buffer %d: %w", src, err)
	}
	if rows <= 0 || rowBytes == 0 {
		return d.Submit(s, func() error { return nil })
	}
	span, err := rowSpan(rowBytes, srcPitch)
	if err != nil {
		return err
	}

	return d.Submit(s, func() error {
		b, dev, queue, err := d.lookup(src)
		if err != nil {
			return err
		}
		size := regionSize(srcPitch, span, rows)

		staging, err := dev.CreateBuffer(&hal.BufferDescriptor{
			Label: "framepool_staging",
			Size:  size,
			Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create staging buffer: %w", err)
		}
		defer dev.DestroyBuffer(staging)

		if err := encodeCopies(dev, queue, "framepool_readback", b.buf, staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: size},
		}); err != nil {
			return err
		}

		readback := make([]byte, size)
		if err := queue.ReadBuffer(staging, 0, readback); err != nil {
			return fmt.Errorf("readback: %w", err)
		}
		for y := range uint64(rows) {
			copy(dst[y*dstPitch:y*dstPitch+rowBytes], readback[y*srcPitch:y*srcPitch+rowBytes])
		}
		return nil
	})
}

// CopyDeviceToDevice queues a strided copy as one command buffer with a
// region per row.
func (d *Device) CopyDeviceToDevice(s device.StreamID, dst device.BufferID, dstPitch uint64,
	src device.BufferID, srcPitch, rowBytes uint64, rows int) error {
	in, _, _, err := d.lookup(src)
	if err != nil {
		return err
	}
	out, _, _, err := d.lookup(dst)
	if err != nil {
		return err
	}
	if err := device.CheckCopy2D(out.size, dstPitch, in.size, srcPitch, rowBytes, rows); err != nil {
		return fmt.Errorf("copy buffer %d to %d: %w", src, dst, err)
	}
	if rows <= 0 || rowBytes == 0 {
		return d.Submit(s, func() error { return nil })
	}
	span, err := rowSpan(rowBytes, min(srcPitch, dstPitch))
	if err != nil {
		return err
	}

	regions := make([]hal.BufferCopy, 0, rows)
	if span == srcPitch && srcPitch == dstPitch {
		regions = append(regions, hal.BufferCopy{Size: regionSize(srcPitch, span, rows)})
	} else {
		for y := range uint64(rows) {
			regions = append(regions, hal.BufferCopy{
				SrcOffset: y * srcPitch,
				DstOffset: y * dstPitch,
				Size:      span,
			})
		}
	}

	return d.Submit(s, func() error {
		in, dev, queue, err := d.lookup(src)
		if err != nil {
			return err
		}
		out, _, _, err := d.lookup(dst)
		if err != nil {
			return err
		}
		return encodeCopies(dev, queue, "framepool_copy", in.buf, out.buf, regions)
	})
}

// Fill queues a byte fill. offset and size must be 4-byte aligned.
func (d *Device) Fill(s device.StreamID, dst device.BufferID, offset, size uint64, value byte) error {
	b, _, _, err := d.lookup(dst)
	if err != nil {
		return err
	}
	if offset+size > b.size || offset%copyAlignment != 0 || size%copyAlignment != 0 {
		return fmt.Errorf("fill buffer %d [%d, %d): %w", dst, offset, offset+size, device.ErrOutOfRange)
	}

	return d.Submit(s, func() error {
		b, dev, queue, err := d.lookup(dst)
		if err != nil {
			return err
		}
		data := make([]byte, size)
		if value != 0 {
			for i := range data {
				data[i] = value
			}
		}
		queue.WriteBuffer(b.buf, offset, data)
		return submitAndWait(dev, queue, nil)
	})
}
