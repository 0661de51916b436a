/*
go-yolobridge provides Go language client bindings for an Ultralytics YOLO
inference engine running as a separate process.  It aims to provide lite
bindings in the spirit of the Ultralytics mobile SDKs: the engine performs
model execution (object detection, segmentation, classification, pose
estimation, and oriented bounding boxes) and this package drives it over
named method and event channels, decoding the loosely typed wire maps it
returns into typed results.

The engine is reached through a wire.Messenger.  Package ipc spawns and
supervises a local engine subprocess speaking length prefixed msgpack over
stdio, and package mqttbridge reaches a remote engine worker over MQTT.

Multiple models may be loaded concurrently using multi instance Predictors,
each tracked by an opaque instance ID.  Live camera sessions are driven
through a View, which streams per frame detection results and accepts
threshold, zoom, and streaming configuration changes.

See example code and usage in the example subdirectory.
*/
package yolobridge
