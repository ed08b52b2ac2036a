// Package codegen implements the code generation agent from spec.md §4.8:
// language inference, a framework-aware prompt, an LLM call wrapped in a
// syntax-validate-and-retry feedback loop, and token accounting across
// every attempt.
package codegen

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/llm"
	"github.com/forgemind/forgemind/resilience"
	"github.com/forgemind/forgemind/syntax"
)

// DefaultMaxRetries bounds the feedback-retry loop: default_max_retries=2
// means 3 attempts total, per spec.md §4.8.
const DefaultMaxRetries = 2

// DefaultFallbackLanguage is used when neither framework nor keyword scan
// identifies a target language.
const DefaultFallbackLanguage = "JavaScript"

// DefaultMaxTokens bounds a single LLM call's output.
const DefaultMaxTokens = 1500

// DefaultTemperature is the code generation call's sampling temperature.
const DefaultTemperature float32 = 0.2

const maxDocExcerpts = 3
const docExcerptCap = 600

// FrameworkGuidance is one entry in the closed per-framework lookup: prose
// guidance plus a short canonical example snippet, per SPEC_FULL.md's
// supplement to the distilled spec (original_source/backend/ shows the
// curated blocks include a worked example, not just prose).
type FrameworkGuidance struct {
	Language       string
	Prompt         string
	ExampleSnippet string
}

// frameworkTable is the closed framework -> language/guidance lookup.
var frameworkTable = map[string]FrameworkGuidance{
	"nestjs": {
		Language: "TypeScript",
		Prompt:   "Use NestJS decorators (@Controller, @Injectable, @Module) and dependency injection via constructor parameters. Prefer class-based providers and DTOs with class-validator decorators.",
		ExampleSnippet: "@Controller('users')\nexport class UsersController {\n  constructor(private readonly usersService: UsersService) {}\n\n  @Get(':id')\n  findOne(@Param('id') id: string) {\n    return this.usersService.findOne(id);\n  }\n}",
	},
	"fastapi": {
		Language: "Python",
		Prompt:   "Use FastAPI path operation decorators, Pydantic models for request/response bodies, and dependency injection via Depends().",
		ExampleSnippet: "@app.get(\"/users/{user_id}\")\nasync def read_user(user_id: int, db: Session = Depends(get_db)):\n    return crud.get_user(db, user_id)",
	},
	"express": {
		Language: "JavaScript",
		Prompt:   "Use Express Router, middleware functions with (req, res, next), and async handlers wrapped to forward rejected promises to next().",
		ExampleSnippet: "router.get('/users/:id', async (req, res, next) => {\n  try {\n    const user = await userService.findById(req.params.id);\n    res.json(user);\n  } catch (err) {\n    next(err);\n  }\n});",
	},
	"django": {
		Language: "Python",
		Prompt:   "Use Django class-based views or function views registered in urls.py, and Django ORM querysets rather than raw SQL.",
		ExampleSnippet: "class UserDetailView(DetailView):\n    model = User\n\n    def get_object(self):\n        return get_object_or_404(User, pk=self.kwargs[\"pk\"])",
	},
	"spring boot": {
		Language: "Java",
		Prompt:   "Use Spring annotations (@RestController, @Service, @Autowired/constructor injection) and return ResponseEntity<T> from controller methods.",
		ExampleSnippet: "@RestController\n@RequestMapping(\"/users\")\npublic class UserController {\n    private final UserService userService;\n\n    public UserController(UserService userService) {\n        this.userService = userService;\n    }\n\n    @GetMapping(\"/{id}\")\n    public ResponseEntity<User> getUser(@PathVariable Long id) {\n        return ResponseEntity.ok(userService.findById(id));\n    }\n}",
	},
	"asp.net core": {
		Language: "C#",
		Prompt:   "Use ASP.NET Core controllers deriving from ControllerBase, attribute routing, and constructor-injected services registered for dependency injection.",
		ExampleSnippet: "[ApiController]\n[Route(\"api/[controller]\")]\npublic class UsersController : ControllerBase {\n    private readonly IUserService _userService;\n    public UsersController(IUserService userService) => _userService = userService;\n\n    [HttpGet(\"{id}\")]\n    public ActionResult<User> GetUser(long id) => Ok(_userService.FindById(id));\n}",
	},
}

// keywordLanguages is the fallback scan when no framework is supplied.
var keywordLanguages = []struct {
	keyword  string
	language string
}{
	{"typescript", "TypeScript"},
	{"nestjs", "TypeScript"},
	{"python", "Python"},
	{"fastapi", "Python"},
	{"django", "Python"},
	{"java", "Java"},
	{"spring", "Java"},
	{"c#", "C#"},
	{"asp.net", "C#"},
	{"javascript", "JavaScript"},
	{"node", "JavaScript"},
	{"express", "JavaScript"},
}

const baseSystemPrompt = `You are an expert software engineer generating production-quality code.
Write correct, idiomatic code for the requested language and framework. Return
only the code, inside a single fenced code block, with no extra commentary.`

var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n?(.*?)```")

// Agent implements workflow.CodeGenAgent.
type Agent struct {
	client     llm.ChatClient
	validate   func(code, language string) syntax.Result
	maxRetries int
	logger     core.Logger
}

// New builds a codegen Agent over client, using syntax.Validate for
// validation.
func New(client llm.ChatClient, logger core.Logger) *Agent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Agent{
		client:     client,
		validate:   syntax.Validate,
		maxRetries: DefaultMaxRetries,
		logger:     core.WithComponent(logger, "agent/codegen"),
	}
}

// Generate implements workflow.CodeGenAgent.
func (a *Agent) Generate(ctx context.Context, prompt string, docs []core.DocumentationResult, framework string) (*core.CodeGenerationResult, error) {
	if err := core.ValidatePrompt(prompt); err != nil {
		return nil, err
	}

	language, guidance := resolveLanguage(prompt, framework)
	systemPrompt := buildSystemPrompt(guidance)
	userPrompt := buildUserPrompt(prompt, docs)

	attempts := a.maxRetries + 1
	retry := resilience.LLMRetryPolicy()

	var lastCode string
	var lastErrors []string
	totalTokens := 0

	for attempt := 0; attempt < attempts; attempt++ {
		var rawText string
		var tokens int
		callErr := resilience.Retry(ctx, retry, func() error {
			text, used, err := a.client.Chat(ctx, systemPrompt, userPrompt, DefaultTemperature, DefaultMaxTokens)
			if err != nil {
				return err
			}
			rawText = text
			tokens = used
			return nil
		})
		totalTokens += tokens

		if callErr != nil {
			a.logger.ErrorWithContext(ctx, "code generation LLM call failed", map[string]interface{}{"error": callErr.Error(), "attempt": attempt + 1})
			return &core.CodeGenerationResult{
				Code:                 "",
				Language:             language,
				Framework:            framework,
				SyntaxValid:          false,
				ValidationErrors:     []string{fmt.Sprintf("llm_unavailable: %v", callErr)},
				TokensUsed:           totalTokens,
				DocumentationSources: sourcesOf(docs),
			}, nil
		}

		code := extractCode(rawText)
		result := a.validate(code, language)
		lastCode = code
		lastErrors = result.Errors

		if result.Valid {
			return &core.CodeGenerationResult{
				Code:                 code,
				Language:             language,
				Framework:            framework,
				SyntaxValid:          true,
				ValidationErrors:     nil,
				TokensUsed:           totalTokens,
				DocumentationSources: sourcesOf(docs),
			}, nil
		}

		userPrompt = userPrompt + "\n\nThe previous attempt had errors: " + strings.Join(result.Errors, "; ") + ". Please fix them and return the corrected code."
	}

	return &core.CodeGenerationResult{
		Code:                 lastCode,
		Language:             language,
		Framework:            framework,
		SyntaxValid:          false,
		ValidationErrors:     lastErrors,
		TokensUsed:           totalTokens,
		DocumentationSources: sourcesOf(docs),
	}, nil
}

// resolveLanguage infers the target language: framework lookup first, then
// a keyword scan of the prompt, then the configured fallback.
func resolveLanguage(prompt, framework string) (string, *FrameworkGuidance) {
	key := strings.ToLower(strings.TrimSpace(framework))
	if guidance, ok := frameworkTable[key]; ok {
		g := guidance
		return guidance.Language, &g
	}

	lowerPrompt := strings.ToLower(prompt)
	for _, kw := range keywordLanguages {
		if strings.Contains(lowerPrompt, kw.keyword) {
			return kw.language, nil
		}
	}

	return DefaultFallbackLanguage, nil
}

func buildSystemPrompt(guidance *FrameworkGuidance) string {
	if guidance == nil {
		return baseSystemPrompt
	}
	var b strings.Builder
	b.WriteString(baseSystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(guidance.Prompt)
	if guidance.ExampleSnippet != "" {
		b.WriteString("\n\nExample:\n")
		b.WriteString(guidance.ExampleSnippet)
	}
	return b.String()
}

func buildUserPrompt(prompt string, docs []core.DocumentationResult) string {
	if len(docs) == 0 {
		return prompt
	}

	limit := len(docs)
	if limit > maxDocExcerpts {
		limit = maxDocExcerpts
	}

	var b strings.Builder
	b.WriteString("Relevant documentation:\n")
	for i, d := range docs[:limit] {
		fmt.Fprintf(&b, "[%d] %s (%s)\n%s\n\n", i+1, d.Source, d.Framework, excerpt(d.Content, docExcerptCap))
	}
	b.WriteString("---\n")
	b.WriteString(prompt)
	return b.String()
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// extractCode pulls the inner block out of a fenced response, stripping a
// leading language-tag line if present; otherwise returns the trimmed text.
func extractCode(text string) string {
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

func sourcesOf(docs []core.DocumentationResult) []string {
	sources := make([]string, 0, len(docs))
	for _, d := range docs {
		if d.Source != "" {
			sources = append(sources, d.Source)
		}
	}
	return sources
}
