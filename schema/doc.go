// Copyright (c) jsonforge Authors.
// Licensed under the MIT License.

/*
Package schema 提供保序的 JSON Schema 节点模型与子 schema 拆分算法。

# 概述

Node 是一个带标签的变体：对象（含 properties）、数组（含非空 items）、
叶子（其余一切）。properties / required / items 三个结构关键字是强类型的，
其他关键字（type、description、enum、minLength ...）作为不透明的原始 JSON
按文档顺序原样保留。JSON 文本只在边界处解析（Parse）和输出（MarshalJSON）。

# 拆分

Decompose 把一个对象 schema 递归展开为若干个只含单个属性的子 schema：

  - 嵌套对象不会单独成为子 schema，其叶子被提升到顶层
  - 数组整体生成；对象类型的 items 被替换为其拆分结果
  - required 只来自直接父对象以及调用方传入的 parentRequired
  - 输入节点永远不会被修改

# 校验

Draft07Validator 基于 santhosh-tekuri/jsonschema/v5 实现 Draft-07 校验，
用于检查子 schema 本身以及生成片段是否符合子 schema。
*/
package schema
