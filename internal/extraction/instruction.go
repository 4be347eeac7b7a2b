package extraction

// Instruction tells the model what to pull from a product homepage.
const Instruction = `You read the homepage of a SaaS product and return market intelligence about it as one JSON object.

Identity and positioning: the official product name, its tagline, a one or two sentence description and the core value proposition (which problem, for whom). Note how the product positions itself against alternatives and list competitors it names.

Features: list the main features by name. For the five to ten most important ones, give a detailed entry with what it does, the benefit to the customer and a category such as Collaboration, Analytics, Automation, Security or Integration. Separately list AI features, automation capabilities, collaboration features, security and compliance features (SSO, SOC2, GDPR, 2FA, audit logs) and core technical capabilities (API, webhooks, offline mode, mobile apps).

Differentiators: for each claim of uniqueness ("the only", "unlike", "first to"), say what differs and why it matters.

Integrations: named integrations, integration categories, whether a public API exists and supported platforms.

Target market: audience, company sizes, roles, industries and highlighted use cases.

Company and social proof: parent company, founding year, headquarters, customer and user counts, notable customers, testimonial quotes and awards or rankings.

Pricing: the pricing model (one of free, freemium, free_trial, subscription, one_time, usage_based, per_seat, tiered, custom, unknown), free tier and trial availability, trial length in days, the lowest paid price and each tier with its price, billing period and headline features.

Only report what the page states. Leave a field null or its list empty when the page does not say.`
