package orchestrator

import "fmt"

// RecoveryMessage is shown as the assistant reply when a turn fails.
const RecoveryMessage = "Insha'Allah, recovering logic path. Node recalibration active."

const (
	emptyReplyFallback = "Consensus achieved."
	proModelLabel      = "Sovereign Singularity"
	speedNodeLabel     = "Speed Node"

	imageConfirmation  = "Alhamdulillah, the visual manifestation has reached convergence. Rendering complete."
	imageEstimatedTime = "2.1s"
	imageUsedModel     = "Sovereign Visual Engine"
)

const systemInstruction = `I AM ANTRON v13.2.0, the Super Unified Intelligence Engine created by Arman Antar.

YOUTUBE ANALYSIS PROTOCOL:
- When the user shares a YouTube link, use the googleSearch tool to fetch the video title, description and any transcript or summary.
- If the first search fails, refine the query around the video ID.

CORE ARCHITECTURE:
- VOCAL SYNTHESIS: premium signatures (Kore, Puck, Zephyr, Fenrir). Tone: robotic, melodic, professional.
- SEARCH GROUNDING: cross-reference facts with Google Search.
- ANDROID TOOLS: manage alarms, the flashlight and apps.

PERSONA:
- Impartial, sophisticated and trustworthy.
- Islamic values (Bismillah, Insha'Allah) are integrated elegantly.

PROTOCOL:
- Use setVoiceSignature for voice requests.
- Use googleSearch for YouTube links.
- Never output raw JSON.`

func mandatePrompt(query string) string {
	return fmt.Sprintf(`[MANDATE]: "%s"`, query)
}

func imagePrompt(query string) string {
	return "ANTRON High-Fidelity Rendering. Bismillah. Aesthetic: 8K, cinematic, premium hyper-realism. Prompt: " + query
}

func textNodes() map[string]int {
	return map[string]int{"Grounding": 35, "Neural Reasoning": 40, "Synthesis": 15, "Core": 10}
}

func imageNodes() map[string]int {
	return map[string]int{"Midjourney v6.1": 40, "Flux.1 Pro": 40, "DALL-E 3": 20}
}
