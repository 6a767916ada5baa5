// Package events defines the typed event contract of the companion and the
// synchronous [Bus] that carries it.
//
// Event kinds are grouped by namespace:
//
//   - user_input.*
//   - assistant_response.*
//   - assistant_playback.*
//   - tool_call.*
//   - turn_state.*
//   - external_input.*
//   - interaction.*
//
// user_input events
//
//   - UserInputStarted (user_input.started): a turn started processing user
//     input. Sets the user-input-active flag.
//   - UserInputEnded (user_input.ended): the turn finished, on any exit path.
//   - UserSpeechStarted (user_input.speech_started): the voice gate started a
//     recording.
//   - UserSpeechEnded (user_input.speech_ended): the voice gate closed a
//     recording; Discarded is set for recordings below the minimum length.
//   - UserTranscriptFinal (user_input.transcript_final): recognized text.
//   - UserMessageReceived (user_input.message_received): a user message went
//     through a full turn; carries text and source.
//
// assistant_response events
//
//   - AssistantResponseSegment (assistant_response.segment): streamed reply
//     text in arrival order.
//   - AssistantResponseFinal (assistant_response.final): the reply that ended
//     the turn.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started): first audio of a
//     speech run started playing. Sets the output-active flag.
//   - AssistantPlaybackTranscriptSegment
//     (assistant_playback.transcript_segment): a segment finished playing.
//   - AssistantPlaybackInterrupted (assistant_playback.interrupted): output was
//     interrupted. Sets the sticky interrupted flag.
//   - AssistantPlaybackEnded (assistant_playback.ended): output ended, either
//     completed or interrupted. Clears the output-active flag.
//
// tool_call events
//
//   - ToolCallStarted (tool_call.started)
//   - ToolCallCompleted (tool_call.completed)
//   - ToolCallFailed (tool_call.failed): the call was recorded with a
//     placeholder result.
//
// turn_state events
//
//   - TurnStarted, TurnCompleted, TurnFailed, TurnCancelled
//
// external_input and interaction events
//
//   - ExternalProcessingStarted / ExternalProcessingEnded
//     (external_input.processing_started / processing_ended): toggles the
//     external-processing-active flag.
//   - InteractionUpdated (interaction.updated): any activity that should reset
//     idle timers.
//
// Delivery is at-least-once from the point of view of consumers: handlers
// must tolerate repeated notifications and must not rely on payload fields
// beyond what each event documents.
package events
