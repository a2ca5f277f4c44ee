package report

// AnalysisPrompt is the system prompt of the report completion.
const AnalysisPrompt = "Sei un esperto di psicologia dell'apprendimento e analisi dei dati educativi. " +
	"Analizzi lo stato emotivo degli studenti a partire dalle loro domande a un assistente virtuale. " +
	"Scrivi in italiano, in modo chiaro e professionale, senza formattazione markdown."

// ReportInstruction opens the user prompt of the report completion.
const ReportInstruction = "Genera un report sullo stato emotivo complessivo degli studenti. " +
	"Descrivi le emozioni prevalenti, gli argomenti che generano più difficoltà o frustrazione " +
	"e suggerisci al docente come intervenire. Basati solo sui dati seguenti."
