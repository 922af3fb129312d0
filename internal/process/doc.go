// Package process supervises short-lived decoder subprocesses.
//
// coolpanel decodes non-GIF video by running ffmpeg with raw frames on
// stdout. A Manager owns one such child: it starts the binary in its own
// process group, exposes stdout as a stream, logs stderr, and stops the whole
// group with SIGTERM then SIGKILL when the media source is released.
//
// Restarting is the caller's decision. The video source restarts the decoder
// from the beginning when the stream ends, which is how looping works.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:            "ffmpeg",
//	    Binary:          "ffmpeg",
//	    Args:            []string{"-i", path, "-f", "rawvideo", "-pix_fmt", "rgb24", "-"},
//	    GracefulTimeout: 2 * time.Second,
//	})
//
//	if err := mgr.Start(ctx); err != nil {
//	    return err
//	}
//	defer mgr.Stop()
//
//	io.ReadFull(mgr.Stdout(), frame)
//
// Output runs a command to completion and is used for ffprobe.
package process
