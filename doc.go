/*
go-dashmask is the privacy masking engine of an in-vehicle dashcam.  It
obscures faces, license plates and people in every frame before the frame is
displayed, recorded or uploaded.

A Capture loop reads frames from the camera at hardware rate into a
FrameBuffer, a bounded ring of recent frames also used to export incident
clips.  A Processor ticks at the slower detection rate, runs the detector on
the latest frame and hands the detections to a Session which tracks the
regions over time (see the tracker package) and masks a private copy of the
frame (see the mask package).

The capture loop can be pinned to dedicated cores on RK35xx and Raspberry Pi
boards with WithCPUAffinity.

See example code and usage in the examples subdirectory.
*/
package dashmask
