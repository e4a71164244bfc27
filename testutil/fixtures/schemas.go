// Package fixtures 提供内置的示例 schema 与 prompt，供测试和
// `jsonforge decompose --example` 使用。
package fixtures

import (
	"sort"

	"github.com/v-sekai/jsonforge/schema"
)

// Example 一组示例 prompt 与 schema
type Example struct {
	Name        string
	Description string
	Prompt      string
	Schema      string
}

// Node 解析示例 schema
func (e Example) Node() *schema.Node {
	return schema.MustParse(e.Schema)
}

// 示例名称
const (
	Popstar     = "popstar"
	Personality = "personality"
	AvatarProp  = "avatar-prop"
	GitHubOrg   = "github-org"
	Animation   = "animation"
)

var examples = map[string]Example{
	Popstar: {
		Name:        Popstar,
		Description: "VTuber persona with enums, length limits and string arrays",
		Prompt:      "Sophia, the avatar creation expert, is dedicated to helping users create their perfect digital representation. Create a VTuber who streams music.",
		Schema:      PopstarSchema,
	},
	Personality: {
		Name:        Personality,
		Description: "OMI_personality glTF extension",
		Prompt:      "William Henry Gates III (born October 28, 1955) is an American business magnate, investor, and philanthropist. Following this json schema.",
		Schema:      PersonalitySchema,
	},
	AvatarProp: {
		Name:        AvatarProp,
		Description: "Avatar prop with integer, number and uri leaves",
		Prompt:      "Generate a wand. It is 5 dollars.",
		Schema:      AvatarPropSchema,
	},
	GitHubOrg: {
		Name:        GitHubOrg,
		Description: "GitHub organisation with an array of pinned repository objects",
		Prompt:      "V-Sekai is an open source organisation building social VR software on Godot Engine.",
		Schema:      GitHubOrgSchema,
	},
	Animation: {
		Name:        Animation,
		Description: "Animation with a nested transition trigger object",
		Prompt:      "This emote represents a catgirl face with cat ears and a happy expression.",
		Schema:      AnimationSchema,
	},
}

// Get 按名称返回示例
func Get(name string) (Example, bool) {
	e, ok := examples[name]
	return e, ok
}

// Names 返回所有示例名称（排序）
func Names() []string {
	names := make([]string, 0, len(examples))
	for name := range examples {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// WandSchema 最小的端到端场景：name 和 price 两个叶子
const WandSchema = `{
  "type": "object",
  "properties": {
    "name": {"type": "string"},
    "price": {"type": "integer"}
  },
  "required": ["name"]
}`

// PopstarSchema VTuber 人设
const PopstarSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "name": {
      "type": "string",
      "description": "The name of the VTuber, which can be a combination of real or fictional words.",
      "minLength": 2
    },
    "avatar": {
      "type": "string",
      "enum": ["2D", "3D"],
      "description": "A 2D or 3D digital representation of the VTuber."
    },
    "uniqueIdentifier": {
      "type": "string",
      "description": "The unique identifier for the personality.",
      "minLength": 3,
      "maxLength": 16
    },
    "skills": {
      "type": "array",
      "items": {"type": "string"},
      "description": "A list of skills possessed by the personality.",
      "minItems": 1
    },
    "voice": {
      "type": "string",
      "enum": ["synthesized", "human"],
      "description": "The voice of the VTuber."
    },
    "backstory": {
      "type": "string",
      "description": "A background story for the VTuber.",
      "minLength": 50,
      "maxLength": 100
    },
    "content": {
      "type": "string",
      "enum": ["gaming", "music", "art", "educational", "variety"],
      "description": "The type of content the VTuber creates."
    },
    "platform": {
      "type": "string",
      "enum": ["YouTube", "Twitch", "Other"],
      "description": "The primary platform where the VTuber shares their content."
    },
    "fanbase": {
      "type": "string",
      "description": "The community of fans who follow and support the VTuber's content."
    },
    "collaborations": {
      "type": "array",
      "items": {"type": "string"},
      "description": "Any collaborations the VTuber has done with other creators."
    },
    "merchandise": {
      "type": "string",
      "enum": ["clothing", "accessories", "digital goods"],
      "description": "Any physical or digital merchandise related to the VTuber."
    },
    "knowledge": {
      "type": "string",
      "description": "The specific area of expertise or knowledge of the personality."
    }
  },
  "required": [
    "name", "avatar", "uniqueIdentifier", "knowledge", "skills", "voice",
    "backstory", "content", "platform", "fanbase", "collaborations", "merchandise"
  ]
}`

// PersonalitySchema OMI_personality
const PersonalitySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "OMI_personality",
  "description": "An extension for the glTF format that defines a personality for a node and an endpoint where additional information can be queried.",
  "type": "object",
  "properties": {
    "agent": {
      "type": "string",
      "description": "The name of the agent associated with the node.",
      "maxLength": 128
    },
    "personality": {
      "type": "string",
      "description": "A description of the agent's personality."
    },
    "defaultMessage": {
      "type": "string",
      "description": "The default message that the agent will send on initialization."
    }
  },
  "required": ["agent", "personality"]
}`

// AvatarPropSchema 头像道具
const AvatarPropSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Avatar Prop",
  "type": "object",
  "properties": {
    "id": {"type": "integer", "description": "Unique identifier for the avatar prop."},
    "name": {"type": "string", "description": "Name of the avatar prop."},
    "description": {"type": "string", "description": "Description of the avatar prop."},
    "category": {"type": "string", "description": "Category of the avatar prop."},
    "imageUrl": {"type": "string", "format": "uri", "description": "URL of the image representing the avatar prop."},
    "price": {"type": "number", "description": "Price of the avatar prop."}
  },
  "required": ["id", "name", "category", "imageUrl", "price"]
}`

// GitHubOrgSchema GitHub 组织
const GitHubOrgSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "name": {"type": "string", "description": "The name of the GitHub organization."},
    "description": {"type": "string", "description": "A brief description of the GitHub organization."},
    "followers": {"type": "integer", "description": "The number of followers the GitHub organization has."},
    "website": {"type": "string", "format": "uri", "description": "The official website URL of the GitHub organization."},
    "twitter": {"type": "string", "description": "The Twitter handle of the GitHub organization."},
    "readme": {"type": "string", "description": "The content of the README.md file for the GitHub organization."},
    "pinned_repositories": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "name": {"type": "string", "description": "The name of the repository."},
          "description": {"type": "string", "description": "A brief description of the repository."},
          "language": {"type": "string", "description": "The primary programming language used in the repository."},
          "stars": {"type": "integer", "description": "The number of stars the repository has received."},
          "forks": {"type": "integer", "description": "The number of forks the repository has."},
          "issues": {"type": "integer", "description": "The number of open issues in the repository."},
          "license": {"type": "string", "description": "The type of license used in the repository."},
          "last_updated": {"type": "string", "format": "date-time", "description": "When the repository was last updated, as an ISO 8601 string."}
        },
        "required": ["name", "description", "language", "stars", "forks", "issues", "license", "last_updated"]
      },
      "description": "The pinned repositories of the GitHub organization."
    }
  },
  "required": ["name", "description", "followers", "website", "twitter", "readme", "pinned_repositories"]
}`

// AnimationSchema 动画与过渡触发器
const AnimationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "description": "A schema representing an animation with a name, a description, and a transition trigger. The animation occurs after the specified trigger.",
  "properties": {
    "name": {
      "type": "string",
      "minLength": 3,
      "maxLength": 10,
      "description": "The name of the animation, between 3 and 10 characters long."
    },
    "animation_description": {
      "type": "string",
      "minLength": 10,
      "maxLength": 100,
      "description": "A brief description of the animation."
    },
    "duration_seconds": {
      "type": "number",
      "minimum": 0,
      "description": "A duration of the animation in seconds."
    },
    "transition_trigger": {
      "type": "object",
      "description": "A trigger for transitioning between animations in the animation tree.",
      "properties": {
        "trigger_condition": {"type": "string", "description": "The condition that must be met for the transition to occur."},
        "from_animation": {"type": "string", "description": "The name of the animation to transition from."},
        "to_animation": {"type": "string", "description": "The name of the animation to transition to."}
      },
      "required": ["trigger_condition", "from_animation", "to_animation"]
    }
  },
  "required": ["name", "animation_description", "transition_trigger"]
}`
