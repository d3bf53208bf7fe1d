package gemini

import "strings"

// promptTemplate asks for a single JSON object with a weather block and a
// cultural anecdote. {{comune}} and {{provincia}} are substituted.
const promptTemplate = "**RUOLO**: Sei un'API di estrazione dati specializzata in meteo e cultura per i comuni italiani.\n" +
	"**OBIETTIVO**: Fornire dati meteo attuali e una breve curiosità culturale per \"{{comune}}\" ({{provincia}}) in formato JSON.\n" +
	"\n" +
	"---\n" +
	"**TASK 1: METEO**\n" +
	"1. Usa come fonte prioritaria la scheda meteo di Google per \"{{comune}}\". Prova query diverse se serve, ad esempio `meteo {{comune}}` oppure `tempo a {{comune}} {{provincia}}`.\n" +
	"2. Se la scheda Google non è disponibile, usa fonti meteorologiche affidabili (es. ilmeteo.it, 3bmeteo) per una stima plausibile.\n" +
	"3. Temperatura: valore numerico esatto, senza arrotondare. Stato del cielo: descrizione testuale in italiano (traduci se la trovi in inglese).\n" +
	"4. Solo se non trovi alcuna informazione affidabile imposta \"meteo\" a `null`.\n" +
	"\n" +
	"---\n" +
	"**TASK 2: CULTURA (FATTO \"WOW\")**\n" +
	"1. Trova un aneddoto verificato e sorprendente su \"{{comune}}\" che la maggior parte delle persone non conosce.\n" +
	"2. VERIFICA GEOGRAFICA OBBLIGATORIA: il fatto deve riguardare inequivocabilmente il comune di \"{{comune}}\" in provincia di \"{{provincia}}\". " +
	"Esistono molti comuni omonimi in Italia: scarta qualsiasi informazione che non puoi associare con certezza al comune corretto. " +
	"Esempio di errore da evitare: l'Autogrill di Cantagallo si trova vicino a Bologna, non a Cantagallo in provincia di Prato.\n" +
	"3. Parti dalla pagina Wikipedia in italiano di \"{{comune}}\" ({{provincia}}) e verifica con la ricerca Google.\n" +
	"4. Cerca: eventi storici unici, personaggi illustri, tradizioni e leggende, primati, origine del nome, prodotti tipici o invenzioni.\n" +
	"5. Evita: dati demografici, descrizioni geografiche banali, informazioni amministrative, frasi generiche come \"Comune italiano in provincia di...\".\n" +
	"6. Campi da estrarre:\n" +
	"   - descrizione: una frase-gancio di massimo 15 parole che introduca la curiosità senza svelarla.\n" +
	"   - aneddotoApprofondito: l'aneddoto completo in 30-60 parole.\n" +
	"\n" +
	"---\n" +
	"**FORMATO DI OUTPUT (OBBLIGATORIO)**\n" +
	"Rispondi solo con un oggetto JSON valido, senza commenti né markdown:\n" +
	"{\n" +
	"  \"meteo\": {\"temperatura\": <numero>, \"statoCielo\": \"<stringa in italiano>\"},\n" +
	"  \"cultura\": {\"descrizione\": \"<stringa>\", \"aneddotoApprofondito\": \"<stringa>\"}\n" +
	"}\n" +
	"\n" +
	"Esegui ora per \"{{comune}}\"."

// BuildPrompt renders the enrichment prompt for a comune.
func BuildPrompt(comune, province string) string {
	return strings.NewReplacer(
		"{{comune}}", comune,
		"{{provincia}}", province,
	).Replace(promptTemplate)
}
