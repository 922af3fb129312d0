// Package media opens image and video files as frame sources for the panel.
//
// Every Source yields rasters already sized to the panel. Three kinds exist:
//   - still images (PNG, JPEG, BMP, WebP, TIFF, single-frame GIF): one frame
//   - animated GIF: decoded in-process, frame rate from the frame delays
//   - everything else: probed with ffprobe and decoded by an ffmpeg child
//     emitting raw rgb24 frames
//
// Sources are not safe for concurrent use. The mode controller hands a
// source to the render loop and closes it on the next transition.
package media
