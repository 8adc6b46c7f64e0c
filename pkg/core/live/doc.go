// Package live implements realtime audio/video sessions with a hosted
// native-audio model.
//
// # Architecture
//
// The live package provides several core components:
//
//   - Session: owns one session's lifecycle and its resources
//   - StreamClient: the bidirectional connection, with a pre-open send queue
//   - Scheduler: gapless playback of model audio on an output clock
//   - AudioFramer / EncodePCM16: microphone frames as 16kHz PCM16
//   - FrameEncoder: camera snapshots as small JPEG frames
//
// Devices, the output clock and the remote model sit behind the
// MediaDevices, OutputContext and Transport interfaces.
//
// # Data Flow
//
//	Mic (float32 @16kHz) → AudioFramer → EncodePCM16 ─┐
//	Camera (every 600ms) → FrameEncoder (480x360 JPEG) ┴→ StreamClient.Send
//
//	StreamClient.Events → AudioEvent → DecodePCM16 → Scheduler → OutputContext
//	                    → InterruptedEvent → Scheduler.Interrupt (hard stop)
//
// # State Machine
//
//	idle → connecting → active → idle
//	         │            │
//	         └──→ error ←─┘ → (teardown) → idle
//
// # Usage
//
//	s := live.NewSession(live.DefaultSessionConfig(), live.Dependencies{
//	    Transport: geminiClient,
//	    Devices:   devices,
//	    NewOutput: newSpeaker,
//	    Voice:     appState,
//	})
//	if err := s.Start(ctx, live.StartOptions{Camera: true}); err != nil {
//	    return err
//	}
//	defer s.Stop()
package live
